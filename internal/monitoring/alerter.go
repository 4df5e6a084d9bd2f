package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBlockRate      AlertType = "remote_block_rate"
	AlertDivergenceRate AlertType = "divergence_rate"
	AlertBreakerOpen    AlertType = "breaker_open"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate alerts need at least MinSamples outcomes.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Total >= a.cfg.MinSamples && a.cfg.BlockRateThreshold > 0 && snap.BlockRate > a.cfg.BlockRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertBlockRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Remote block rate %.1f%% exceeds threshold %.1f%% (%d of %d simulations in last %dh)",
				snap.BlockRate*100, a.cfg.BlockRateThreshold*100,
				snap.QuoteFailures[apperr.KindRemoteBlocked], snap.Total, snap.LookbackHours,
			),
			Details: map[string]any{
				"block_rate": snap.BlockRate,
				"threshold":  a.cfg.BlockRateThreshold,
				"total":      snap.Total,
			},
			Timestamp: now,
		})
	}

	quoted := snap.Confirmed + snap.Divergent
	if quoted >= a.cfg.MinSamples && a.cfg.DivergenceRateThreshold > 0 && snap.DivergenceRate > a.cfg.DivergenceRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDivergenceRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Divergence rate %.1f%% exceeds threshold %.1f%% (%d of %d quoted simulations in last %dh)",
				snap.DivergenceRate*100, a.cfg.DivergenceRateThreshold*100,
				snap.Divergent, quoted, snap.LookbackHours,
			),
			Details: map[string]any{
				"divergence_rate": snap.DivergenceRate,
				"threshold":       a.cfg.DivergenceRateThreshold,
				"divergent":       snap.Divergent,
				"quoted":          quoted,
			},
			Timestamp: now,
		})
	}

	if snap.BreakerState == "open" {
		alerts = append(alerts, Alert{
			Type:      AlertBreakerOpen,
			Severity:  "high",
			Message:   "Remote circuit breaker is open; quotes are short-circuited",
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
