package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/cities"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/db"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/monitoring"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/quote"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/simulation"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/store"
)

// appEnv holds the wired pipeline for a command.
type appEnv struct {
	Service *simulation.Service
	Store   store.Store
	Remote  quote.Client
	Metrics *monitoring.Collector

	closers []func() error
}

// Close releases everything the env opened, in reverse order.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// initEnv validates cfg for mode and wires the service. The store is opened
// and migrated only when withStore is set.
func initEnv(ctx context.Context, mode string, withStore bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	opts := []simulation.Option{}

	if !cfg.Remote.Disabled {
		cache, closeCache := initCities(cfg.Cities)
		if closeCache != nil {
			env.closers = append(env.closers, closeCache)
		}
		remote, err := quote.NewClient(remoteConfig(cfg.Remote), quote.WithCache(cache))
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Remote = remote
		opts = append(opts, simulation.WithRemote(remote))
	}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
		opts = append(opts, simulation.WithStore(st))
	}

	var svc *simulation.Service
	env.Metrics = monitoring.NewCollector(func() string {
		return svc.BreakerState().String()
	})
	opts = append(opts, simulation.WithRecorder(env.Metrics))

	svc = simulation.New(cfg, opts...)
	env.Service = svc
	return env, nil
}

func remoteConfig(rc config.RemoteConfig) quote.Config {
	return quote.Config{
		BaseURL:         rc.BaseURL,
		EntryPath:       rc.EntryPath,
		EligibilityPath: rc.EligibilityPath,
		SimulatePath:    rc.SimulatePath,
		CitiesPath:      rc.CitiesPath,
		PagePath:        rc.PagePath,
		UserAgent:       rc.UserAgent,
		VersionTag:      rc.VersionTag,
		Timeout:         rc.Timeout(),
		RatePerSec:      rc.RatePerSec,
		Burst:           rc.Burst,
	}
}

// initCities returns the configured city cache and its closer, if any.
func initCities(cc config.CitiesConfig) (cities.Cache, func() error) {
	if cc.Driver == "redis" {
		r := cities.NewRedis(cc.RedisAddr, time.Duration(cc.RedisTTLHours)*time.Hour)
		return r, r.Close
	}
	return cities.NewMemory(), nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
