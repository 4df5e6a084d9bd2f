// Package reconcile classifies a local simulation against the authoritative
// quote.
package reconcile

import (
	"math"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// DefaultTolerance is one cent.
const DefaultTolerance = 0.01

// epsilon absorbs binary float noise in the installment difference.
const epsilon = 1e-9

// Classify merges local with quote. A nil quote yields StatusUnverified. A
// quote that reports an amortization system different from the local one is
// StatusDivergent with a system_mismatch warning, whatever the delta.
func Classify(local model.LocalSimulationResult, quote *model.AuthoritativeQuote, tolerance float64) model.ReconciledSimulation {
	out := model.ReconciledSimulation{
		Local:  local,
		Status: model.StatusUnverified,
	}
	if quote == nil {
		return out
	}
	if tolerance < 0 {
		tolerance = 0
	}

	q := *quote
	out.Quote = &q

	raw := local.InitialInstallment - q.Installment
	delta := math.Round(raw*100) / 100
	if delta == 0 {
		delta = 0
	}
	out.Delta = &delta

	if remote := q.System(); remote != "" && local.System != "" && remote != local.System {
		out.Warnings = append(out.Warnings, model.WarningSystemMismatch)
		out.Status = model.StatusDivergent
		return out
	}

	// The reported delta is cent-rounded; the gate uses the raw difference.
	if math.Abs(raw) <= tolerance+epsilon {
		out.Status = model.StatusConfirmed
	} else {
		out.Status = model.StatusDivergent
	}
	return out
}
