package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

func local(installment float64) model.LocalSimulationResult {
	return model.LocalSimulationResult{
		System:             model.SystemPRICE,
		InitialInstallment: installment,
	}
}

func TestClassify_Unverified(t *testing.T) {
	t.Parallel()

	got := Classify(local(3511.23), nil, DefaultTolerance)
	assert.Equal(t, model.StatusUnverified, got.Status)
	assert.Nil(t, got.Delta)
	assert.Nil(t, got.Quote)
}

func TestClassify_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		local     float64
		remote    float64
		tolerance float64
		want      model.ValidationStatus
		delta     float64
	}{
		{"exact", 3511.23, 3511.23, DefaultTolerance, model.StatusConfirmed, 0},
		{"plus tolerance", 3511.23, 3511.24, DefaultTolerance, model.StatusConfirmed, -0.01},
		{"minus tolerance", 3511.23, 3511.22, DefaultTolerance, model.StatusConfirmed, 0.01},
		{"tolerance plus a cent", 3511.23, 3511.25, DefaultTolerance, model.StatusDivergent, -0.02},
		{"tolerance plus a cent below", 3511.23, 3511.21, DefaultTolerance, model.StatusDivergent, 0.02},
		{"wider tolerance", 1000.00, 1000.50, 0.50, model.StatusConfirmed, -0.50},
		{"wider tolerance exceeded", 1000.00, 1000.51, 0.50, model.StatusDivergent, -0.51},
		{"negative tolerance is zero", 1000.00, 1000.00, -1, model.StatusConfirmed, 0},
		{"sub-cent quote beyond tolerance", 3511.23, 3511.2151, DefaultTolerance, model.StatusDivergent, 0.01},
		{"sub-cent quote within tolerance", 3511.23, 3511.2251, DefaultTolerance, model.StatusConfirmed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := &model.AuthoritativeQuote{Installment: tt.remote}
			got := Classify(local(tt.local), q, tt.tolerance)

			assert.Equal(t, tt.want, got.Status)
			require.NotNil(t, got.Delta)
			assert.InDelta(t, tt.delta, *got.Delta, 1e-9)
			assert.Empty(t, got.Warnings)
		})
	}
}

func TestClassify_SystemMismatch(t *testing.T) {
	t.Parallel()

	q := &model.AuthoritativeQuote{Installment: 3511.23, SystemCode: "1", SystemName: "SAC"}
	got := Classify(local(3511.23), q, DefaultTolerance)

	assert.Equal(t, model.StatusDivergent, got.Status)
	assert.Contains(t, got.Warnings, model.WarningSystemMismatch)
	require.NotNil(t, got.Delta)
	assert.Zero(t, *got.Delta)
}

func TestClassify_MatchingSystem(t *testing.T) {
	t.Parallel()

	q := &model.AuthoritativeQuote{Installment: 3511.23, SystemCode: "2"}
	got := Classify(local(3511.23), q, DefaultTolerance)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestClassify_QuoteIsCopied(t *testing.T) {
	t.Parallel()

	q := &model.AuthoritativeQuote{Installment: 100}
	got := Classify(local(100), q, DefaultTolerance)
	q.Installment = 999

	require.NotNil(t, got.Quote)
	assert.Equal(t, 100.0, got.Quote.Installment)
}
