// Package monitoring tracks simulation outcomes and alerts when the remote
// authority starts blocking or the local engine drifts from its quotes.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Simulations that attempted a remote quote (within lookback window).
	Total      int `json:"total"`
	Confirmed  int `json:"confirmed"`
	Divergent  int `json:"divergent"`
	Unverified int `json:"unverified"`

	// QuoteFailures counts unverified outcomes by error kind.
	QuoteFailures map[apperr.Kind]int `json:"quote_failures"`

	BlockRate      float64 `json:"block_rate"`
	DivergenceRate float64 `json:"divergence_rate"`
	BreakerState   string  `json:"breaker_state,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

type event struct {
	at     time.Time
	status model.ValidationStatus
	kind   apperr.Kind
}

// maxEvents bounds memory when traffic is heavy. Older events beyond it are
// dropped even if still inside the window.
const maxEvents = 10000

// Collector records outcomes in memory. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	events  []event
	breaker func() string

	nowFunc func() time.Time
}

// NewCollector creates a collector. breakerState, if non-nil, is sampled on
// every Collect.
func NewCollector(breakerState func() string) *Collector {
	return &Collector{breaker: breakerState, nowFunc: time.Now}
}

// Record adds one outcome. quoteErr is the reason an unverified outcome has
// no quote, or nil.
func (c *Collector) Record(status model.ValidationStatus, quoteErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event{
		at:     c.nowFunc(),
		status: status,
		kind:   apperr.KindOf(quoteErr),
	})
	if len(c.events) > maxEvents {
		c.events = append(c.events[:0], c.events[len(c.events)-maxEvents:]...)
	}
}

// Collect gathers a snapshot over the given lookback window and drops older
// events.
func (c *Collector) Collect(_ context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	snap := &MetricsSnapshot{
		QuoteFailures: map[apperr.Kind]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now.UTC(),
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	kept := c.events[:0]
	for _, e := range c.events {
		if e.at.Before(cutoff) {
			continue
		}
		kept = append(kept, e)

		snap.Total++
		switch e.status {
		case model.StatusConfirmed:
			snap.Confirmed++
		case model.StatusDivergent:
			snap.Divergent++
		case model.StatusUnverified:
			snap.Unverified++
			if e.kind != "" {
				snap.QuoteFailures[e.kind]++
			}
		}
	}
	c.events = kept

	if snap.Total > 0 {
		blocked := snap.QuoteFailures[apperr.KindRemoteBlocked]
		snap.BlockRate = float64(blocked) / float64(snap.Total)
	}
	if quoted := snap.Confirmed + snap.Divergent; quoted > 0 {
		snap.DivergenceRate = float64(snap.Divergent) / float64(quoted)
	}
	if c.breaker != nil {
		snap.BreakerState = c.breaker()
	}
	return snap, nil
}
