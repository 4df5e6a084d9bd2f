// Package store persists accepted simulations.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// ListFilter specifies criteria for listing simulations.
type ListFilter struct {
	StateCode string `json:"state_code,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

func (f ListFilter) offset() int {
	return max(f.Offset, 0)
}

// Store defines the persistence interface for accepted simulations. Records
// are immutable once accepted.
type Store interface {
	// Accept persists a confirmed simulation. Anything else is rejected with
	// a not_reconciled error and nothing is written.
	Accept(ctx context.Context, params model.SimulationParameters, sim model.ReconciledSimulation) (*model.SimulationRecord, error)
	Get(ctx context.Context, id string) (*model.SimulationRecord, error)
	List(ctx context.Context, filter ListFilter) ([]model.SimulationRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// newRecord applies the acceptance gate and stamps a new record.
func newRecord(params model.SimulationParameters, sim model.ReconciledSimulation) (*model.SimulationRecord, error) {
	if sim.Status != model.StatusConfirmed || sim.Quote == nil || sim.Delta == nil {
		return nil, apperr.New(apperr.KindNotReconciled,
			"only simulations confirmed by the lending authority can be saved (status: "+string(sim.Status)+")")
	}
	return &model.SimulationRecord{
		ID:         uuid.New().String(),
		Parameters: params,
		Local:      sim.Local,
		Quote:      *sim.Quote,
		Status:     sim.Status,
		Delta:      *sim.Delta,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, "simulation "+id+" not found")
}
