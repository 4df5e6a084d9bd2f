// Package amortization computes PRICE and SAC installment schedules locally,
// independent of the remote lending authority.
package amortization

import (
	"fmt"
	"math"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// Term bounds in months.
const (
	MinTermMonths = 12
	MaxTermMonths = 420
)

// MaxAnnualRatePct caps each annual rate, in percent.
const MaxAnnualRatePct = 1000

// Validate checks the engine preconditions on p.
func Validate(p model.SimulationParameters) error {
	if !finite(p.PropertyValue) || p.PropertyValue <= 0 {
		return invalid("property value must be greater than zero")
	}
	if p.TermMonths < MinTermMonths || p.TermMonths > MaxTermMonths {
		return invalid(fmt.Sprintf("term must be between %d and %d months", MinTermMonths, MaxTermMonths))
	}
	if !p.System.Valid() {
		return invalid(fmt.Sprintf("unknown amortization system %q", p.System))
	}

	money := []struct {
		name  string
		value float64
	}{
		{"down payment", p.DownPayment},
		{"financed expenses", p.FinancedExpenses},
		{"subsidy", p.Subsidy},
		{"monthly income", p.MonthlyIncome},
		{"monthly insurance", p.MonthlyInsurance},
		{"monthly admin fee", p.MonthlyAdminFee},
		{"annual contract rate", p.AnnualContractRate},
		{"annual index rate", p.AnnualIndexRate},
	}
	for _, m := range money {
		if !finite(m.value) || m.value < 0 {
			return invalid(m.name + " must not be negative")
		}
	}

	if p.AnnualContractRate > MaxAnnualRatePct || p.AnnualIndexRate > MaxAnnualRatePct {
		return invalid(fmt.Sprintf("annual rates must not exceed %d%%", MaxAnnualRatePct))
	}

	if p.FinancedAmount() <= 0 {
		return invalid("financed amount must be greater than zero")
	}
	return nil
}

// MonthlyRate converts an annual percentage rate to its compounded monthly
// equivalent as a fraction.
func MonthlyRate(annualPct float64) float64 {
	return math.Pow(1+annualPct/100, 1.0/12) - 1
}

// Simulate computes the local simulation result for p.
func Simulate(p model.SimulationParameters) (model.LocalSimulationResult, error) {
	if err := Validate(p); err != nil {
		return model.LocalSimulationResult{}, err
	}

	financed := p.FinancedAmount()
	n := float64(p.TermMonths)
	contract := MonthlyRate(p.AnnualContractRate)
	index := MonthlyRate(p.AnnualIndexRate)
	r := (1+contract)*(1+index) - 1

	var first, last, totalBase float64
	switch p.System {
	case model.SystemPRICE:
		first = annuity(financed, r, p.TermMonths)
		last = first
		totalBase = first * n
	case model.SystemSAC:
		amort := financed / n
		first = amort + financed*r
		last = amort + amort*r
		totalBase = (first + last) / 2 * n
	}

	enc := p.MonthlyEncumbrance()
	totalEnc := enc * n
	totalPaid := totalBase + totalEnc
	if !finite(first) || !finite(last) || !finite(totalPaid) {
		return model.LocalSimulationResult{}, invalid("parameters produce an installment out of range")
	}

	res := model.LocalSimulationResult{
		System:                 p.System,
		TermMonths:             p.TermMonths,
		FinancedAmount:         round2(financed),
		MonthlyContractRate:    contract,
		MonthlyIndexRate:       index,
		EffectiveMonthlyRate:   r,
		InitialBaseInstallment: round2(first),
		FinalBaseInstallment:   round2(last),
		InitialInstallment:     round2(first + enc),
		FinalInstallment:       round2(last + enc),
		AverageInstallment:     round2(totalPaid / n),
		TotalBasePaid:          round2(totalBase),
		TotalPaid:              round2(totalPaid),
		TotalInterest:          round2(totalBase - financed),
		TotalEncumbrances:      round2(totalEnc),
	}
	if p.MonthlyIncome > 0 {
		ratio := math.Round((first+enc)/p.MonthlyIncome*10000) / 10000
		res.IncomeCommitment = &ratio
	}
	return res, nil
}

// Schedule returns the month-by-month breakdown for p.
func Schedule(p model.SimulationParameters) ([]model.Installment, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	financed := p.FinancedAmount()
	r := (1+MonthlyRate(p.AnnualContractRate))*(1+MonthlyRate(p.AnnualIndexRate)) - 1
	enc := p.MonthlyEncumbrance()
	price := annuity(financed, r, p.TermMonths)
	if !finite(price) {
		return nil, invalid("parameters produce an installment out of range")
	}
	sacAmort := financed / float64(p.TermMonths)

	rows := make([]model.Installment, 0, p.TermMonths)
	balance := financed
	for i := 1; i <= p.TermMonths; i++ {
		interest := balance * r
		var amort float64
		if p.System == model.SystemPRICE {
			amort = price - interest
		} else {
			amort = sacAmort
		}
		if i == p.TermMonths {
			amort = balance
		}
		balance -= amort
		rows = append(rows, model.Installment{
			Number:       i,
			Amortization: round2(amort),
			Interest:     round2(interest),
			Encumbrance:  round2(enc),
			Total:        round2(amort + interest + enc),
			Balance:      round2(math.Max(balance, 0)),
		})
	}
	return rows, nil
}

func annuity(principal, r float64, term int) float64 {
	if r == 0 {
		return principal / float64(term)
	}
	f := math.Pow(1+r, float64(term))
	return principal * (r * f) / (f - 1)
}

func round2(v float64) float64 {
	out := math.Round(v*100) / 100
	if out == 0 {
		return 0
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(msg string) error {
	return apperr.New(apperr.KindInvalidParameter, msg)
}
