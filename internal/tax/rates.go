package tax

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// computeLine evaluates one rate definition against the billing inputs and
// returns the resulting line. ok is false when the rule produces no line
// (zero amount or service type not covered).
func (e *Engine) computeLine(def RateDefinition, jurisName string, in CalculationInput) (TaxLine, bool, error) {
	if !def.Active || !def.AppliesTo(in.ServiceType) {
		return TaxLine{}, false, nil
	}

	var amount decimal.Decimal
	var rate decimal.Decimal
	switch def.RateType {
	case RatePercentage:
		rate = def.PercentageRate
		amount = in.Amount.Mul(rate).Div(hundred).Round(e.precision())
	case RateFixed:
		rate = def.Amount
		amount = def.Amount
		if def.PerLine {
			amount = amount.Mul(decimal.NewFromInt(int64(in.LineCount)))
		}
		amount = amount.Round(e.precision())
	case RateUsage:
		rate = def.Amount
		amount = in.Minutes.Mul(rate).Round(e.precision())
	default:
		return TaxLine{}, false, fmt.Errorf("rate %q: unknown rate type %q", def.Name, def.RateType)
	}

	if amount.IsZero() || amount.IsNegative() {
		return TaxLine{}, false, nil
	}
	return TaxLine{
		Name:           def.Name,
		TaxType:        def.TaxType,
		RateType:       def.RateType,
		Rate:           rate,
		BaseAmount:     in.Amount,
		TaxAmount:      amount,
		ExemptedAmount: decimal.Zero,
		Jurisdiction:   jurisName,
		Level:          def.Level,
		priority:       def.Priority,
	}, true, nil
}

// linesForJurisdictions evaluates every active rate definition belonging to
// one of the given jurisdictions, in priority order. A request touching a
// county, a city, and a district yields lines from all three.
func (e *Engine) linesForJurisdictions(defs []RateDefinition, js []Jurisdiction, in CalculationInput) ([]TaxLine, error) {
	byID := make(map[int64]Jurisdiction, len(js))
	for _, j := range js {
		byID[j.ID] = j
	}

	lines := make([]TaxLine, 0, len(defs))
	for _, def := range defs {
		j, ok := byID[def.JurisdictionID]
		if !ok {
			continue
		}
		line, ok, err := e.computeLine(def, j.Name, in)
		if err != nil {
			return nil, err
		}
		if ok {
			lines = append(lines, line)
		}
	}
	sortLines(lines)
	return lines, nil
}

// stateLines produces the state-level breakdown for the resolved
// jurisdictions.
func (e *Engine) stateLines(defs []RateDefinition, js []Jurisdiction, in CalculationInput) ([]TaxLine, error) {
	return e.linesForJurisdictions(defs, filterLevel(js, func(l JurisdictionLevel) bool { return l == LevelState }), in)
}

// localLines produces the county/city/municipality/district breakdown.
func (e *Engine) localLines(defs []RateDefinition, js []Jurisdiction, in CalculationInput) ([]TaxLine, error) {
	return e.linesForJurisdictions(defs, filterLevel(js, JurisdictionLevel.Local), in)
}

func filterLevel(js []Jurisdiction, keep func(JurisdictionLevel) bool) []Jurisdiction {
	out := make([]Jurisdiction, 0, len(js))
	for _, j := range js {
		if keep(j.Level) {
			out = append(out, j)
		}
	}
	return out
}

// listRates fetches the category's rate definitions once for all levels.
func (e *Engine) listRates(ctx context.Context, scope string, categoryID int64) ([]RateDefinition, error) {
	defs, err := e.Rates.ListActiveByCategory(ctx, scope, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list rate definitions: %w", err)
	}
	return defs, nil
}

func sortLines(lines []TaxLine) {
	sort.SliceStable(lines, func(i, k int) bool {
		if lines[i].priority != lines[k].priority {
			return lines[i].priority < lines[k].priority
		}
		if lines[i].Jurisdiction != lines[k].Jurisdiction {
			return lines[i].Jurisdiction < lines[k].Jurisdiction
		}
		return lines[i].Name < lines[k].Name
	})
}
