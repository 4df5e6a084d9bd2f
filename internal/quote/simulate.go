package quote

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/cities"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/pkg/dwr"
)

// Simulate runs init, eligibility and the simulation RPC in one fresh
// session.
func (c *httpClient) Simulate(ctx context.Context, params model.SimulationParameters) (*model.AuthoritativeQuote, error) {
	if err := validateRemote(params); err != nil {
		return nil, err
	}

	s, err := c.newSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	prod, err := s.submitEligibility(ctx, eligibilityForm(c.cfg.VersionTag, params))
	if err != nil {
		return nil, err
	}
	zap.L().Debug("quote: eligible product",
		zap.Int("item_id", prod.ItemID),
		zap.Int("version_id", prod.VersionID),
		zap.String("name", prod.Name),
	)

	call := dwr.SimulationCall(prod.ItemID, prod.VersionID, params.StateCode, string(params.BorrowerType), paramString(params))
	rows, err := s.call(ctx, "simulate", c.cfg.SimulatePath, call)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.KindNoQuoteReturned, noQuoteMessage(params.System))
	}

	q, ok := quoteFromRow(rows[0], prod.Name)
	if !ok || q.Installment <= 0 {
		return nil, apperr.New(apperr.KindInvalidQuote, "the lending authority returned a quote without a valid installment")
	}
	if q.TermMonths == 0 {
		q.TermMonths = params.TermMonths
	}
	return &q, nil
}

func noQuoteMessage(system model.AmortizationSystem) string {
	switch system {
	case model.SystemSAC:
		return "the lending authority returned no SAC quote for these parameters"
	default:
		return "the lending authority returned no PRICE quote for these parameters"
	}
}

// Cities returns the cities of regionCode, using the cache when it can.
func (c *httpClient) Cities(ctx context.Context, regionCode string) ([]model.CityOption, error) {
	if !cities.ValidRegion(regionCode) {
		return nil, apperr.New(apperr.KindInvalidParameter, "unknown state code "+strconv.Quote(regionCode))
	}
	uf := cities.Key(regionCode)
	if list, ok := c.cache.Get(ctx, uf); ok {
		return list, nil
	}

	s, err := c.newSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	rows, err := s.call(ctx, "cities", c.cfg.CitiesPath, dwr.CityCall(uf))
	if err != nil {
		return nil, err
	}

	list := cityList(rows)
	if len(list) > 0 {
		c.cache.Put(ctx, uf, list)
	}
	return list, nil
}

// cityList deduplicates rows by code, keeping the first name, and sorts by
// name ignoring case and accents.
func cityList(rows []dwr.Row) []model.CityOption {
	seen := make(map[int]bool, len(rows))
	list := make([]model.CityOption, 0, len(rows))
	for _, row := range rows {
		city, ok := cityFromRow(row)
		if !ok || seen[city.Code] {
			continue
		}
		seen[city.Code] = true
		list = append(list, city)
	}

	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase, collate.IgnoreDiacritics)
	slices.SortStableFunc(list, func(a, b model.CityOption) int {
		if n := col.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return a.Code - b.Code
	})
	return list
}

// eligibilityForm builds the eligibility POST body.
func eligibilityForm(versionTag string, p model.SimulationParameters) url.Values {
	form := url.Values{}
	form.Set("pgVersao", versionTag)
	form.Set("tipoPessoa", string(p.BorrowerType))
	form.Set("tipoImovel", p.PropertyType)
	form.Set("categoriaImovel", p.FinancingCategory)
	form.Set("valorImovel", formatMoney(p.PropertyValue))
	form.Set("uf", strings.ToUpper(p.StateCode))
	form.Set("cidade", strconv.Itoa(p.CityCode))
	form.Set("rendaFamiliarBruta", formatMoney(p.MonthlyIncome))
	form.Set("dataNascimento", p.BirthDate.Format(dateLayout))
	form.Set("permiteArmazenamento", "S")
	return form
}

// validateRemote checks the fields the remote needs. The engine validates
// the financial fields separately.
func validateRemote(p model.SimulationParameters) error {
	switch {
	case !cities.ValidRegion(p.StateCode):
		return apperr.New(apperr.KindInvalidParameter, "unknown state code "+strconv.Quote(p.StateCode))
	case p.CityCode <= 0:
		return apperr.New(apperr.KindInvalidParameter, "city code is required")
	case p.BirthDate.IsZero():
		return apperr.New(apperr.KindInvalidParameter, "birth date is required")
	case !p.BorrowerType.Valid():
		return apperr.New(apperr.KindInvalidParameter, "borrower type must be F or J")
	case !p.System.Valid():
		return apperr.New(apperr.KindInvalidParameter, "amortization system must be PRICE or SAC")
	case p.PropertyValue <= 0:
		return apperr.New(apperr.KindInvalidParameter, "property value must be positive")
	case p.TermMonths <= 0:
		return apperr.New(apperr.KindInvalidParameter, "term must be positive")
	case p.MonthlyIncome < 0 || p.DownPayment < 0:
		return apperr.New(apperr.KindInvalidParameter, "monetary values must not be negative")
	}
	return nil
}
