package tax

import (
	"context"
	"fmt"
	"sort"
)

// ResolveExemptions retrieves the client's exemptions valid on the
// calculation date that are blanket or scoped to one of the resolved
// jurisdictions, ordered by ascending priority. A nil client id means no
// exemptions apply, which is not an error.
func (e *Engine) ResolveExemptions(ctx context.Context, scope string, clientID *int64, js []Jurisdiction, in CalculationInput) ([]Exemption, error) {
	if clientID == nil {
		return nil, nil
	}
	if scope == "" {
		return nil, ErrMissingScope
	}
	all, err := e.Exemptions.ListValidForClient(ctx, scope, *clientID, in.Date)
	if err != nil {
		return nil, fmt.Errorf("list exemptions: %w", err)
	}

	inScope := make(map[int64]bool, len(js))
	for _, j := range js {
		inScope[j.ID] = true
	}

	matched := make([]Exemption, 0, len(all))
	for _, ex := range all {
		if !ex.ValidAt(in.Date) {
			continue
		}
		if ex.Blanket || ex.JurisdictionID == nil {
			matched = append(matched, ex)
			continue
		}
		if inScope[*ex.JurisdictionID] {
			matched = append(matched, ex)
		}
	}
	sort.SliceStable(matched, func(i, k int) bool {
		if matched[i].Priority != matched[k].Priority {
			return matched[i].Priority < matched[k].Priority
		}
		return matched[i].ID < matched[k].ID
	})
	return matched, nil
}

// applyExemptions reduces each line by every matching exemption, in
// priority order. Relief per application is the exemption's percentage of
// the line's original amount, capped at whatever tax remains on the line,
// so stacked exemptions can never push a line below zero or exempt more
// than the original amount. Each non-zero application is recorded.
func (e *Engine) applyExemptions(lines []TaxLine, exemptions []Exemption) []ExemptionApplied {
	if len(lines) == 0 || len(exemptions) == 0 {
		return nil
	}
	applied := make([]ExemptionApplied, 0, len(lines))
	for i := range lines {
		line := &lines[i]
		original := line.TaxAmount
		for _, ex := range exemptions {
			if !ex.Covers(line.TaxType) {
				continue
			}
			if line.TaxAmount.IsZero() {
				break
			}
			relief := original.Mul(ex.ReliefPercent).Div(hundred).Round(e.precision())
			if relief.GreaterThan(line.TaxAmount) {
				relief = line.TaxAmount
			}
			if !relief.IsPositive() {
				continue
			}
			line.TaxAmount = line.TaxAmount.Sub(relief)
			line.ExemptedAmount = line.ExemptedAmount.Add(relief)
			applied = append(applied, ExemptionApplied{
				ExemptionID:    ex.ID,
				TaxName:        line.Name,
				TaxType:        line.TaxType,
				Jurisdiction:   line.Jurisdiction,
				OriginalAmount: original,
				ExemptedAmount: relief,
				FinalAmount:    line.TaxAmount,
			})
		}
	}
	return applied
}
