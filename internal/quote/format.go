package quote

import (
	"math"
	"strconv"
	"strings"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/pkg/dwr"
)

const dateLayout = "02/01/2006"

// Remote system codes.
const (
	systemCodeSAC   = "1"
	systemCodePRICE = "2"
)

// amortizationOverride tells the remote to use the requested system instead
// of the product default.
const amortizationOverride = "S"

// Quote row keys.
const (
	keyInstallment     = "valorPrestacao"
	keyLastInstallment = "valorUltimaPrestacao"
	keyTerm            = "prazo"
	keyFinanced        = "valorFinanciamento"
	keyNominalRate     = "taxaJurosNominal"
	keyInsurance       = "valorSeguro"
	keyAdminFee        = "taxaAdministracao"
	keySystemCode      = "codigoSistemaAmortizacao"
	keySystemName      = "nomeSistemaAmortizacao"
	keyInsurer         = "nomeSeguradora"

	keyCityCode = "codigo"
	keyCityName = "nome"
)

// formatMoney renders v with two decimals and a comma separator.
func formatMoney(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}

func systemCode(s model.AmortizationSystem) string {
	if s == model.SystemSAC {
		return systemCodeSAC
	}
	return systemCodePRICE
}

// paramString builds the colon-delimited parameter string of the simulation
// call. Field order is fixed by the remote.
func paramString(p model.SimulationParameters) string {
	fields := []string{
		formatMoney(p.PropertyValue),
		formatMoney(p.MonthlyIncome),
		p.PropertyType,
		strconv.Itoa(p.CityCode),
		strings.ToUpper(p.StateCode),
		p.BirthDate.Format(dateLayout),
		string(p.BorrowerType),
		p.FinancingCategory,
		amortizationOverride,
		systemCode(p.System),
		strconv.Itoa(p.TermMonths),
		formatMoney(p.DownPayment),
	}
	return strings.Join(fields, ":")
}

// parseNumber accepts JSON-ish numbers and locale-formatted strings such as
// "R$ 1.234,56" or "9,50%".
func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "R$")
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func parseString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func optionalNumber(row dwr.Row, key string) *float64 {
	f, ok := parseNumber(row[key])
	if !ok {
		return nil
	}
	return &f
}

// quoteFromRow maps the first reply row to a quote. ok is false when the row
// carries no installment at all.
func quoteFromRow(row dwr.Row, productName string) (model.AuthoritativeQuote, bool) {
	installment, ok := parseNumber(row[keyInstallment])
	if !ok {
		return model.AuthoritativeQuote{}, false
	}
	q := model.AuthoritativeQuote{
		Installment:       installment,
		LastInstallment:   optionalNumber(row, keyLastInstallment),
		NominalAnnualRate: optionalNumber(row, keyNominalRate),
		SystemCode:        parseString(row[keySystemCode]),
		SystemName:        parseString(row[keySystemName]),
		InsurerName:       parseString(row[keyInsurer]),
		ProductName:       productName,
	}
	if term, ok := parseNumber(row[keyTerm]); ok {
		q.TermMonths = int(term)
	}
	if v, ok := parseNumber(row[keyFinanced]); ok {
		q.FinancedAmount = v
	}
	if v, ok := parseNumber(row[keyInsurance]); ok {
		q.MonthlyInsurance = v
	}
	if v, ok := parseNumber(row[keyAdminFee]); ok {
		q.MonthlyAdminFee = v
	}
	return q, true
}

// cityFromRow maps a city row. ok is false for rows without a usable code or
// name.
func cityFromRow(row dwr.Row) (model.CityOption, bool) {
	code, ok := parseNumber(row[keyCityCode])
	if !ok || code <= 0 || code != math.Trunc(code) {
		return model.CityOption{}, false
	}
	name := parseString(row[keyCityName])
	if name == "" {
		return model.CityOption{}, false
	}
	return model.CityOption{Code: int(code), Name: name}, true
}
