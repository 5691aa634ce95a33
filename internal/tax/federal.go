package tax

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Federal excise tax: 3% of the charge, only above a $0.20 base (exclusive),
// and only on traditional telephony service types.
var (
	exciseRate      = decimal.NewFromInt(3)
	exciseThreshold = decimal.RequireFromString("0.20")

	// DefaultUSFRate is the fallback contribution factor used when no
	// quarterly factor is on file.
	DefaultUSFRate = decimal.RequireFromString("33.4")
)

func exciseEligible(st ServiceType) bool {
	switch st {
	case ServiceLocal, ServiceLongDistance, ServiceInternation:
		return true
	}
	return false
}

func usfEligible(st ServiceType) bool {
	switch st {
	case ServiceLocal, ServiceLongDistance, ServiceInternation,
		ServiceVoIPFixed, ServiceVoIPNomadic:
		return true
	}
	return false
}

// federalLines produces the federal breakdown: the statutory excise and USF
// rules, then any stored federal rate definitions (E911, relay, pooling).
func (e *Engine) federalLines(ctx context.Context, scope string, defs []RateDefinition, js []Jurisdiction, in CalculationInput) ([]TaxLine, error) {
	federal := filterLevel(js, func(l JurisdictionLevel) bool { return l == LevelFederal })
	authority := "Federal"
	if len(federal) > 0 {
		authority = federal[0].Name
	}

	lines := make([]TaxLine, 0, 4)

	if exciseEligible(in.ServiceType) && in.Amount.GreaterThan(exciseThreshold) {
		amount := in.Amount.Mul(exciseRate).Div(hundred).Round(e.precision())
		if !amount.IsZero() {
			lines = append(lines, TaxLine{
				Name:         "Federal Excise Tax",
				TaxType:      TaxExcise,
				RateType:     RatePercentage,
				Rate:         exciseRate,
				BaseAmount:   in.Amount,
				TaxAmount:    amount,
				Jurisdiction: authority,
				Level:        LevelFederal,
				priority:     0,
			})
		}
	}

	if usfEligible(in.ServiceType) {
		rate := e.usfRate(ctx, scope, in.Date)
		amount := in.Amount.Mul(rate).Div(hundred).Round(e.precision())
		if !amount.IsZero() {
			lines = append(lines, TaxLine{
				Name:         "Universal Service Fund",
				TaxType:      TaxUSF,
				RateType:     RatePercentage,
				Rate:         rate,
				BaseAmount:   in.Amount,
				TaxAmount:    amount,
				Jurisdiction: authority,
				Level:        LevelFederal,
				priority:     1,
			})
		}
	}

	stored, err := e.linesForJurisdictions(defs, federal, in)
	if err != nil {
		return nil, err
	}
	lines = append(lines, stored...)
	return lines, nil
}

// usfRate resolves the USF contribution factor for the calculation date's
// quarter, falling back to DefaultUSFRate when none is on file. The fallback
// is logged so a stale factor table is visible to operators.
func (e *Engine) usfRate(ctx context.Context, scope string, at time.Time) decimal.Decimal {
	year := at.Year()
	quarter := int(at.Month()-1)/3 + 1
	rate, ok, err := e.Rates.USFRate(ctx, scope, year, quarter)
	if err != nil {
		e.logger().Warn().Err(err).Int("year", year).Int("quarter", quarter).Msg("usf rate lookup failed, using default factor")
		return DefaultUSFRate
	}
	if !ok {
		e.logger().Warn().Int("year", year).Int("quarter", quarter).Msg("no usf factor on file for quarter, using default")
		return DefaultUSFRate
	}
	return rate
}
