package cities

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

const redisKeyPrefix = "quote:cities:"

// Redis shares city lists between processes. A memory cache sits in front
// so repeated lookups stay local. Redis failures degrade to a cache miss.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	front  *Memory
}

// NewRedis creates a Redis-backed cache. A zero ttl keeps entries forever.
func NewRedis(addr string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		front:  NewMemory(),
	}
}

func (r *Redis) Get(ctx context.Context, regionCode string) ([]model.CityOption, bool) {
	if list, ok := r.front.Get(ctx, regionCode); ok {
		return list, true
	}

	raw, err := r.client.Get(ctx, redisKeyPrefix+Key(regionCode)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cities: redis get failed", zap.String("uf", Key(regionCode)), zap.Error(err))
		}
		return nil, false
	}

	var list []model.CityOption
	if err := json.Unmarshal(raw, &list); err != nil {
		zap.L().Warn("cities: discarding malformed redis entry", zap.String("uf", Key(regionCode)), zap.Error(err))
		return nil, false
	}
	r.front.Put(ctx, regionCode, list)
	return list, true
}

func (r *Redis) Put(ctx context.Context, regionCode string, cities []model.CityOption) {
	r.front.Put(ctx, regionCode, cities)

	raw, err := json.Marshal(cities)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+Key(regionCode), raw, r.ttl).Err(); err != nil {
		zap.L().Warn("cities: redis set failed", zap.String("uf", Key(regionCode)), zap.Error(err))
	}
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
