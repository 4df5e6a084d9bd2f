package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically evaluates remote quote outcomes and raises alerts
// when the lending authority starts blocking or diverging.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker creates a checker over collector. A non-positive check interval
// falls back to five minutes, a non-positive lookback to one hour.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = 1
	}
	return c
}

// Run evaluates outcomes on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: watching remote quote outcomes",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check returns how many alerts the current window triggered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect outcomes", zap.Error(err))
		return 0
	}

	fields := []zap.Field{
		zap.Int("quotes", snap.Total),
		zap.Int("confirmed", snap.Confirmed),
		zap.Float64("block_rate", snap.BlockRate),
		zap.Float64("divergence_rate", snap.DivergenceRate),
		zap.String("breaker", snap.BreakerState),
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: remote outcomes within thresholds", fields...)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: remote outcome thresholds breached",
		append(fields, zap.Int("alerts", len(alerts)), zap.Int("delivered", sent))...,
	)
	return len(alerts)
}
