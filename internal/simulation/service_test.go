package simulation

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/quote"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/resilience"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/store"
)

type fakeClient struct {
	quote  *model.AuthoritativeQuote
	err    error
	cities []model.CityOption
	calls  atomic.Int32
}

func (f *fakeClient) Simulate(_ context.Context, _ model.SimulationParameters) (*model.AuthoritativeQuote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	return &q, nil
}

func (f *fakeClient) Cities(_ context.Context, _ string) ([]model.CityOption, error) {
	f.calls.Add(1)
	return f.cities, f.err
}

var _ quote.Client = (*fakeClient)(nil)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Reconcile.Tolerance = 0.01
	cfg.Remote.BreakerFailures = 2
	cfg.Remote.BreakerResetSecs = 60
	return cfg
}

// referenceParams is the 450000/90000/360 PRICE scenario at 10.5% a.a. with
// 345 of monthly encumbrances.
func referenceParams() model.SimulationParameters {
	return model.SimulationParameters{
		PropertyValue:      450000,
		DownPayment:        90000,
		TermMonths:         360,
		MonthlyIncome:      15000,
		BirthDate:          time.Date(1990, 5, 10, 0, 0, 0, 0, time.UTC),
		StateCode:          "DF",
		CityCode:           9701,
		BorrowerType:       model.BorrowerIndividual,
		PropertyType:       "1",
		FinancingCategory:  "1",
		System:             model.SystemPRICE,
		AnnualContractRate: 10.5,
		MonthlyInsurance:   320,
		MonthlyAdminFee:    25,
	}
}

func matchingQuote() *model.AuthoritativeQuote {
	return &model.AuthoritativeQuote{
		Installment: 3511.23,
		TermMonths:  360,
		SystemCode:  "2",
		SystemName:  "PRICE",
		ProductName: "SBPE",
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSimulate_Confirmed(t *testing.T) {
	remote := &fakeClient{quote: matchingQuote()}
	svc := New(testConfig(), WithRemote(remote))

	out, err := svc.Simulate(context.Background(), referenceParams(), true)
	require.NoError(t, err)

	assert.NoError(t, out.QuoteErr)
	assert.Equal(t, model.StatusConfirmed, out.Reconciled.Status)
	assert.Equal(t, 3166.23, out.Reconciled.Local.InitialBaseInstallment)
	assert.Equal(t, 3511.23, out.Reconciled.Local.InitialInstallment)
	require.NotNil(t, out.Reconciled.Local.IncomeCommitment)
	assert.InDelta(t, 0.2341, *out.Reconciled.Local.IncomeCommitment, 1e-9)
	require.NotNil(t, out.Reconciled.Delta)
	assert.Zero(t, *out.Reconciled.Delta)
}

func TestSimulate_RemoteUnreachableIsUnverified(t *testing.T) {
	remote := &fakeClient{err: apperr.Wrap(apperr.KindNetwork, errors.New("dial tcp: connection refused"), "the lending authority could not be reached")}
	svc := New(testConfig(), WithRemote(remote))

	out, err := svc.Simulate(context.Background(), referenceParams(), true)
	require.NoError(t, err)

	assert.Equal(t, model.StatusUnverified, out.Reconciled.Status)
	assert.Nil(t, out.Reconciled.Quote)
	assert.Nil(t, out.Reconciled.Delta)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(out.QuoteErr))
	assert.Equal(t, 3511.23, out.Reconciled.Local.InitialInstallment)
}

func TestSimulate_LocalOnly(t *testing.T) {
	remote := &fakeClient{quote: matchingQuote()}
	svc := New(testConfig(), WithRemote(remote))

	out, err := svc.Simulate(context.Background(), referenceParams(), false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnverified, out.Reconciled.Status)
	assert.NoError(t, out.QuoteErr)
	assert.Zero(t, remote.calls.Load())
}

func TestSimulate_NoRemoteConfigured(t *testing.T) {
	svc := New(testConfig())

	out, err := svc.Simulate(context.Background(), referenceParams(), true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnverified, out.Reconciled.Status)
	assert.ErrorIs(t, out.QuoteErr, ErrRemoteDisabled)
}

func TestSimulate_Divergent(t *testing.T) {
	q := matchingQuote()
	q.Installment = 3500
	svc := New(testConfig(), WithRemote(&fakeClient{quote: q}))

	out, err := svc.Simulate(context.Background(), referenceParams(), true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDivergent, out.Reconciled.Status)
	require.NotNil(t, out.Reconciled.Delta)
	assert.InDelta(t, 11.23, *out.Reconciled.Delta, 1e-9)
}

func TestSimulate_InvalidParameters(t *testing.T) {
	remote := &fakeClient{quote: matchingQuote()}
	svc := New(testConfig(), WithRemote(remote))

	p := referenceParams()
	p.TermMonths = 6
	_, err := svc.Simulate(context.Background(), p, true)
	assert.Equal(t, apperr.KindInvalidParameter, apperr.KindOf(err))
	assert.Zero(t, remote.calls.Load(), "remote must not be called for invalid input")
}

func TestWithDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = config.EngineConfig{
		AnnualContractRate: 10.5,
		AnnualIndexRate:    1.2,
		MonthlyInsurance:   320,
		MonthlyAdminFee:    25,
	}
	svc := New(cfg)

	p := referenceParams()
	p.AnnualContractRate = 0
	p.MonthlyInsurance = 0
	p.MonthlyAdminFee = 30

	got := svc.WithDefaults(p)
	assert.InDelta(t, 10.5, got.AnnualContractRate, 1e-9)
	assert.InDelta(t, 1.2, got.AnnualIndexRate, 1e-9)
	assert.InDelta(t, 320.0, got.MonthlyInsurance, 1e-9)
	assert.InDelta(t, 30.0, got.MonthlyAdminFee, 1e-9, "explicit values win")
}

func TestWithDefaults_ExplicitZeroRates(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = config.EngineConfig{AnnualContractRate: 10.5, AnnualIndexRate: 1.2, MonthlyInsurance: 320}
	svc := New(cfg)

	p := referenceParams()
	p.AnnualIndexRate = 0
	p.MonthlyInsurance = 0
	p.NoDefaults = true

	got := svc.WithDefaults(p)
	assert.Zero(t, got.AnnualIndexRate, "zero correction index is kept")
	assert.Zero(t, got.MonthlyInsurance)

	out, err := svc.Simulate(context.Background(), p, false)
	require.NoError(t, err)
	assert.Zero(t, out.Reconciled.Local.MonthlyIndexRate)
	assert.Equal(t, 3191.23, out.Reconciled.Local.InitialInstallment)
}

func TestBreakerOpensAfterBlocks(t *testing.T) {
	remote := &fakeClient{err: apperr.New(apperr.KindRemoteBlocked, "blocked")}
	svc := New(testConfig(), WithRemote(remote))
	ctx := context.Background()

	for range 2 {
		out, err := svc.Simulate(ctx, referenceParams(), true)
		require.NoError(t, err)
		assert.Equal(t, apperr.KindRemoteBlocked, apperr.KindOf(out.QuoteErr))
	}
	assert.Equal(t, resilience.CircuitOpen, svc.BreakerState())

	out, err := svc.Simulate(ctx, referenceParams(), true)
	require.NoError(t, err)
	assert.ErrorIs(t, out.QuoteErr, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), remote.calls.Load(), "open breaker must not touch the remote")
	assert.Equal(t, model.StatusUnverified, out.Reconciled.Status)
}

func TestSave_Confirmed(t *testing.T) {
	st := newTestStore(t)
	svc := New(testConfig(), WithRemote(&fakeClient{quote: matchingQuote()}), WithStore(st))
	ctx := context.Background()

	rec, out, err := svc.Save(ctx, referenceParams())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.StatusConfirmed, rec.Status)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3511.23, got.Quote.Installment)

	list, err := svc.List(ctx, store.ListFilter{StateCode: "df"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSave_RejectsUnverified(t *testing.T) {
	st := newTestStore(t)
	remote := &fakeClient{err: apperr.New(apperr.KindTimeout, "timed out")}
	svc := New(testConfig(), WithRemote(remote), WithStore(st))
	ctx := context.Background()

	rec, out, err := svc.Save(ctx, referenceParams())
	assert.Nil(t, rec)
	assert.Equal(t, apperr.KindNotReconciled, apperr.KindOf(err))
	require.NotNil(t, out)
	assert.Equal(t, model.StatusUnverified, out.Reconciled.Status)

	list, err := svc.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSave_NoStore(t *testing.T) {
	svc := New(testConfig(), WithRemote(&fakeClient{quote: matchingQuote()}))
	_, _, err := svc.Save(context.Background(), referenceParams())
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestCities(t *testing.T) {
	remote := &fakeClient{cities: []model.CityOption{{Code: 9701, Name: "Brasília"}}}
	svc := New(testConfig(), WithRemote(remote))

	list, err := svc.Cities(context.Background(), "df")
	require.NoError(t, err)
	assert.Equal(t, []model.CityOption{{Code: 9701, Name: "Brasília"}}, list)

	_, err = New(testConfig()).Cities(context.Background(), "DF")
	assert.ErrorIs(t, err, ErrRemoteDisabled)
}

func TestSchedule(t *testing.T) {
	svc := New(testConfig())
	rows, err := svc.Schedule(referenceParams())
	require.NoError(t, err)
	require.Len(t, rows, 360)
	assert.InDelta(t, 3511.23, rows[0].Total, 0.01)
}

type recordedOutcome struct {
	status model.ValidationStatus
	kind   apperr.Kind
}

type sliceRecorder struct {
	got []recordedOutcome
}

func (r *sliceRecorder) Record(status model.ValidationStatus, quoteErr error) {
	r.got = append(r.got, recordedOutcome{status, apperr.KindOf(quoteErr)})
}

func TestSimulate_RecordsRemoteOutcomes(t *testing.T) {
	rec := &sliceRecorder{}
	remote := &fakeClient{quote: matchingQuote()}
	svc := New(testConfig(), WithRemote(remote), WithRecorder(rec))
	ctx := context.Background()

	_, err := svc.Simulate(ctx, referenceParams(), true)
	require.NoError(t, err)
	_, err = svc.Simulate(ctx, referenceParams(), false)
	require.NoError(t, err)
	remote.err = apperr.New(apperr.KindTimeout, "timed out")
	_, err = svc.Simulate(ctx, referenceParams(), true)
	require.NoError(t, err)

	assert.Equal(t, []recordedOutcome{
		{model.StatusConfirmed, ""},
		{model.StatusUnverified, apperr.KindTimeout},
	}, rec.got, "local-only runs are not recorded")
}
