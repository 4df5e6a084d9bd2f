package model

import (
	"time"
)

// AmortizationSystem identifies the installment schedule.
type AmortizationSystem string

const (
	// SystemPRICE is the constant-installment (French/annuity) system.
	SystemPRICE AmortizationSystem = "PRICE"
	// SystemSAC is the constant-amortization system.
	SystemSAC AmortizationSystem = "SAC"
)

// Valid reports whether s is a known system.
func (s AmortizationSystem) Valid() bool {
	return s == SystemPRICE || s == SystemSAC
}

// BorrowerType distinguishes individual from corporate borrowers.
type BorrowerType string

const (
	BorrowerIndividual BorrowerType = "F"
	BorrowerCorporate  BorrowerType = "J"
)

// Valid reports whether b is a known borrower type.
func (b BorrowerType) Valid() bool {
	return b == BorrowerIndividual || b == BorrowerCorporate
}

// SimulationParameters is the caller-supplied input of a simulation. The
// remote-facing fields (codes, birth date, income) and the engine-facing
// fields (rates, encumbrances) travel together.
type SimulationParameters struct {
	PropertyValue     float64            `json:"property_value" yaml:"property_value"`
	DownPayment       float64            `json:"down_payment" yaml:"down_payment"`
	FinancedExpenses  float64            `json:"financed_expenses,omitempty" yaml:"financed_expenses"`
	Subsidy           float64            `json:"subsidy,omitempty" yaml:"subsidy"`
	TermMonths        int                `json:"term_months" yaml:"term_months"`
	MonthlyIncome     float64            `json:"monthly_income" yaml:"monthly_income"`
	BirthDate         time.Time          `json:"birth_date" yaml:"birth_date"`
	StateCode         string             `json:"state_code" yaml:"state_code"`
	CityCode          int                `json:"city_code" yaml:"city_code"`
	BorrowerType      BorrowerType       `json:"borrower_type" yaml:"borrower_type"`
	PropertyType      string             `json:"property_type" yaml:"property_type"`
	FinancingCategory string             `json:"financing_category" yaml:"financing_category"`
	System            AmortizationSystem `json:"amortization_system" yaml:"amortization_system"`

	AnnualContractRate float64 `json:"annual_contract_rate" yaml:"annual_contract_rate"` // percent
	AnnualIndexRate    float64 `json:"annual_index_rate" yaml:"annual_index_rate"`       // percent
	MonthlyInsurance   float64 `json:"monthly_insurance" yaml:"monthly_insurance"`
	MonthlyAdminFee    float64 `json:"monthly_admin_fee" yaml:"monthly_admin_fee"`

	// NoDefaults keeps zero rates and encumbrances as given instead of
	// filling them from the deployment defaults.
	NoDefaults bool `json:"no_defaults,omitempty" yaml:"no_defaults"`
}

// FinancedAmount returns property value plus financed expenses minus down
// payment and subsidy.
func (p SimulationParameters) FinancedAmount() float64 {
	return p.PropertyValue + p.FinancedExpenses - p.DownPayment - p.Subsidy
}

// MonthlyEncumbrance is the fixed amount added to every installment.
func (p SimulationParameters) MonthlyEncumbrance() float64 {
	return p.MonthlyInsurance + p.MonthlyAdminFee
}

// AuthoritativeQuote is the remote lending authority's own simulation.
type AuthoritativeQuote struct {
	Installment       float64  `json:"installment"`
	LastInstallment   *float64 `json:"last_installment,omitempty"`
	TermMonths        int      `json:"term_months"`
	FinancedAmount    float64  `json:"financed_amount"`
	NominalAnnualRate *float64 `json:"nominal_annual_rate,omitempty"`
	MonthlyInsurance  float64  `json:"monthly_insurance"`
	MonthlyAdminFee   float64  `json:"monthly_admin_fee"`
	SystemCode        string   `json:"system_code,omitempty"`
	SystemName        string   `json:"system_name,omitempty"`
	InsurerName       string   `json:"insurer_name,omitempty"`
	ProductName       string   `json:"product_name,omitempty"`
}

// System maps the remote system code or name to a local system. Unknown or
// empty codes return "".
func (q AuthoritativeQuote) System() AmortizationSystem {
	for _, s := range []string{q.SystemCode, q.SystemName} {
		switch normalizeSystem(s) {
		case "PRICE", "TABELA PRICE", "2":
			return SystemPRICE
		case "SAC", "1":
			return SystemSAC
		}
	}
	return ""
}

// LocalSimulationResult is the engine output. Monetary fields are rounded to
// cents; rates are kept unrounded.
type LocalSimulationResult struct {
	System                 AmortizationSystem `json:"amortization_system"`
	TermMonths             int                `json:"term_months"`
	FinancedAmount         float64            `json:"financed_amount"`
	MonthlyContractRate    float64            `json:"monthly_contract_rate"`
	MonthlyIndexRate       float64            `json:"monthly_index_rate"`
	EffectiveMonthlyRate   float64            `json:"effective_monthly_rate"`
	InitialBaseInstallment float64            `json:"initial_base_installment"`
	FinalBaseInstallment   float64            `json:"final_base_installment"`
	InitialInstallment     float64            `json:"initial_installment"`
	FinalInstallment       float64            `json:"final_installment"`
	AverageInstallment     float64            `json:"average_installment"`
	TotalBasePaid          float64            `json:"total_base_paid"`
	TotalPaid              float64            `json:"total_paid"`
	TotalInterest          float64            `json:"total_interest"`
	TotalEncumbrances      float64            `json:"total_encumbrances"`
	IncomeCommitment       *float64           `json:"income_commitment,omitempty"`
}

// Installment is one row of an amortization schedule.
type Installment struct {
	Number       int     `json:"number"`
	Amortization float64 `json:"amortization"`
	Interest     float64 `json:"interest"`
	Encumbrance  float64 `json:"encumbrance"`
	Total        float64 `json:"total"`
	Balance      float64 `json:"balance"`
}
