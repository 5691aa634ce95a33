package tax

import (
	"context"
	"fmt"
)

// MatchCategory selects the single active category governing a service type.
// When several categories qualify the lowest priority number wins. The
// second return value reports whether the charge is taxable at all: no
// matching category, or a matched category with the taxable flag off, means
// the engine short-circuits to a zero-tax result rather than erroring.
func (e *Engine) MatchCategory(ctx context.Context, scope string, st ServiceType) (TaxCategory, bool, error) {
	if scope == "" {
		return TaxCategory{}, false, ErrMissingScope
	}
	cats, err := e.Categories.ListActiveCategories(ctx, scope)
	if err != nil {
		return TaxCategory{}, false, fmt.Errorf("list categories: %w", err)
	}

	var best TaxCategory
	found := false
	for _, c := range cats {
		if !c.Active || !c.AppliesTo(st) {
			continue
		}
		if !found || c.Priority < best.Priority {
			best = c
			found = true
		}
	}
	if !found || !best.Taxable {
		return best, false, nil
	}
	return best, true, nil
}
