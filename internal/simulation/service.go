// Package simulation runs the quote pipeline: local engine, best-effort
// authoritative quote, reconciliation and gated persistence.
package simulation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/amortization"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/quote"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/reconcile"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/resilience"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/store"
)

// ErrRemoteDisabled is returned for remote-only operations when the remote
// authority is switched off in config.
var ErrRemoteDisabled = apperr.New(apperr.KindRemoteBlocked, "the lending authority is disabled in this deployment")

// Outcome is a reconciled simulation plus the reason the quote is missing,
// if it is.
type Outcome struct {
	Parameters model.SimulationParameters
	Reconciled model.ReconciledSimulation
	QuoteErr   error
}

// Recorder observes every outcome that attempted a remote quote.
type Recorder interface {
	Record(status model.ValidationStatus, quoteErr error)
}

// Service wires the pipeline stages together. Remote and Store may be nil:
// without a remote every simulation is unverified, without a store nothing
// can be saved.
type Service struct {
	remote    quote.Client
	store     store.Store
	breaker   *resilience.CircuitBreaker
	recorder  Recorder
	defaults  config.EngineConfig
	tolerance float64
}

// Option configures the service.
type Option func(*Service)

// WithRemote sets the remote authority client.
func WithRemote(c quote.Client) Option {
	return func(s *Service) {
		s.remote = c
	}
}

// WithStore sets the simulation store.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithBreaker overrides the circuit breaker around remote calls.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// WithRecorder sets an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// New creates a service from cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		defaults:  cfg.Engine,
		tolerance: cfg.Reconcile.Tolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		bcfg := resilience.FromCircuitConfig(cfg.Remote.BreakerFailures, cfg.Remote.BreakerResetSecs)
		bcfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("simulation: remote breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		s.breaker = resilience.NewCircuitBreaker(bcfg)
	}
	return s
}

// WithDefaults fills rates and encumbrances the caller left at zero from the
// configured engine defaults, unless p.NoDefaults is set.
func (s *Service) WithDefaults(p model.SimulationParameters) model.SimulationParameters {
	if p.NoDefaults {
		return p
	}
	if p.AnnualContractRate == 0 {
		p.AnnualContractRate = s.defaults.AnnualContractRate
	}
	if p.AnnualIndexRate == 0 {
		p.AnnualIndexRate = s.defaults.AnnualIndexRate
	}
	if p.MonthlyInsurance == 0 {
		p.MonthlyInsurance = s.defaults.MonthlyInsurance
	}
	if p.MonthlyAdminFee == 0 {
		p.MonthlyAdminFee = s.defaults.MonthlyAdminFee
	}
	return p
}

// Simulate computes the local result and, when withQuote is set and a remote
// is configured, reconciles it against the authoritative quote. Only invalid
// parameters fail; remote failures land in Outcome.QuoteErr.
func (s *Service) Simulate(ctx context.Context, params model.SimulationParameters, withQuote bool) (*Outcome, error) {
	params = s.WithDefaults(params)
	local, err := amortization.Simulate(params)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Parameters: params}
	var q *model.AuthoritativeQuote
	switch {
	case !withQuote:
	case s.remote == nil:
		out.QuoteErr = ErrRemoteDisabled
	default:
		q, err = s.Quote(ctx, params)
		if err != nil {
			out.QuoteErr = err
			zap.L().Warn("simulation: no authoritative quote",
				zap.String("kind", string(apperr.KindOf(err))),
				zap.String("uf", params.StateCode),
				zap.String("system", string(params.System)),
				zap.Error(err),
			)
		}
	}

	out.Reconciled = reconcile.Classify(local, q, s.tolerance)
	if withQuote && s.remote != nil && s.recorder != nil {
		s.recorder.Record(out.Reconciled.Status, out.QuoteErr)
	}
	zap.L().Debug("simulation: classified",
		zap.String("status", string(out.Reconciled.Status)),
		zap.Float64("initial_installment", local.InitialInstallment),
	)
	return out, nil
}

// Quote fetches the authoritative quote through the circuit breaker.
func (s *Service) Quote(ctx context.Context, params model.SimulationParameters) (*model.AuthoritativeQuote, error) {
	if s.remote == nil {
		return nil, ErrRemoteDisabled
	}
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) (*model.AuthoritativeQuote, error) {
		return s.remote.Simulate(ctx, params)
	})
}

// Save re-runs the full pipeline and persists the result if, and only if, it
// is confirmed.
func (s *Service) Save(ctx context.Context, params model.SimulationParameters) (*model.SimulationRecord, *Outcome, error) {
	if s.store == nil {
		return nil, nil, apperr.New(apperr.KindInternal, "no simulation store configured")
	}
	out, err := s.Simulate(ctx, params, true)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.store.Accept(ctx, out.Parameters, out.Reconciled)
	if err != nil {
		if apperr.Is(err, apperr.KindNotReconciled) {
			return nil, out, err
		}
		return nil, out, eris.Wrap(err, "simulation: save")
	}
	zap.L().Info("simulation: saved",
		zap.String("id", rec.ID),
		zap.String("uf", rec.Parameters.StateCode),
		zap.Float64("delta", rec.Delta),
	)
	return rec, out, nil
}

// Schedule returns the month-by-month breakdown with engine defaults
// applied.
func (s *Service) Schedule(params model.SimulationParameters) ([]model.Installment, error) {
	return amortization.Schedule(s.WithDefaults(params))
}

// Cities returns the cities of a region through the breaker.
func (s *Service) Cities(ctx context.Context, regionCode string) ([]model.CityOption, error) {
	if s.remote == nil {
		return nil, ErrRemoteDisabled
	}
	return resilience.Execute(ctx, s.breaker, func(ctx context.Context) ([]model.CityOption, error) {
		return s.remote.Cities(ctx, regionCode)
	})
}

// Get returns a saved simulation.
func (s *Service) Get(ctx context.Context, id string) (*model.SimulationRecord, error) {
	if s.store == nil {
		return nil, apperr.New(apperr.KindInternal, "no simulation store configured")
	}
	return s.store.Get(ctx, id)
}

// List returns saved simulations, newest first.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]model.SimulationRecord, error) {
	if s.store == nil {
		return nil, apperr.New(apperr.KindInternal, "no simulation store configured")
	}
	return s.store.List(ctx, filter)
}

// BreakerState reports the remote circuit state.
func (s *Service) BreakerState() resilience.CircuitState {
	return s.breaker.State()
}
