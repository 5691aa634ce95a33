package tax

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ResolveJurisdictions maps a service address onto the set of active
// jurisdictions whose geographic predicate matches it. An empty address
// resolves to the federal jurisdiction(s) only. Matching is non-exclusive:
// a county, a city, and a special district may all match at once.
func (e *Engine) ResolveJurisdictions(ctx context.Context, scope string, addr Address) ([]Jurisdiction, error) {
	if scope == "" {
		return nil, ErrMissingScope
	}

	key := "tax:juris:" + scope + ":" + addr.Hash()
	var cached []Jurisdiction
	if hit, err := e.cacheGet(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	all, err := e.Jurisdictions.ListActiveJurisdictions(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list jurisdictions: %w", err)
	}

	norm := addr.Normalize()
	empty := norm == Address{}
	matched := make([]Jurisdiction, 0, 4)
	for _, j := range all {
		if !j.Active {
			continue
		}
		if j.Level == LevelFederal {
			matched = append(matched, j)
			continue
		}
		if empty {
			continue
		}
		if matchGeo(j.Match, norm) {
			matched = append(matched, j)
		}
	}

	sort.SliceStable(matched, func(i, k int) bool {
		if matched[i].Level != matched[k].Level {
			return levelOrder(matched[i].Level) < levelOrder(matched[k].Level)
		}
		return matched[i].ID < matched[k].ID
	})

	e.cacheSet(ctx, key, matched)
	return matched, nil
}

// matchGeo evaluates a jurisdiction predicate against a normalized address.
// Every non-empty component of the predicate must match; empty components
// are wildcards.
func matchGeo(m GeoMatch, addr Address) bool {
	if !matchComponent(m.Countries, addr.Country) {
		return false
	}
	if !matchComponent(m.States, addr.State) {
		return false
	}
	if !matchComponent(m.Counties, addr.County) {
		return false
	}
	if !matchComponent(m.Cities, addr.City) {
		return false
	}
	if len(m.PostalPatterns) > 0 && !matchPostal(m.PostalPatterns, addr.PostalCode) {
		return false
	}
	return true
}

func matchComponent(want []string, got string) bool {
	if len(want) == 0 {
		return true
	}
	if got == "" {
		return false
	}
	for _, w := range want {
		if strings.EqualFold(strings.TrimSpace(w), got) {
			return true
		}
	}
	return false
}

func matchPostal(patterns []string, code string) bool {
	if code == "" {
		return false
	}
	for _, p := range patterns {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(code, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if p == code {
			return true
		}
	}
	return false
}

func levelOrder(l JurisdictionLevel) int {
	switch l {
	case LevelFederal:
		return 0
	case LevelState:
		return 1
	case LevelCounty:
		return 2
	case LevelCity:
		return 3
	case LevelMunicipality:
		return 4
	case LevelSpecialDistrict:
		return 5
	}
	return 6
}

func summarize(js []Jurisdiction) []JurisdictionSummary {
	out := make([]JurisdictionSummary, 0, len(js))
	for _, j := range js {
		out = append(out, JurisdictionSummary{ID: j.ID, Name: j.Name, Level: j.Level})
	}
	return out
}
