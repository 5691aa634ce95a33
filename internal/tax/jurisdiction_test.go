package tax_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/tax"
)

func caStore() *fakeStore {
	store := newStore()
	store.jurisdictions = append(store.jurisdictions,
		tax.Jurisdiction{ID: 2, Name: "California", Level: tax.LevelState, Active: true,
			Match: tax.GeoMatch{Countries: []string{"US"}, States: []string{"CA"}}},
		tax.Jurisdiction{ID: 3, Name: "Los Angeles County", Level: tax.LevelCounty, Active: true,
			Match: tax.GeoMatch{States: []string{"CA"}, Counties: []string{"Los Angeles"}}},
		tax.Jurisdiction{ID: 4, Name: "City of Los Angeles", Level: tax.LevelCity, Active: true,
			Match: tax.GeoMatch{States: []string{"CA"}, Cities: []string{"Los Angeles"}, PostalPatterns: []string{"900*"}}},
		tax.Jurisdiction{ID: 5, Name: "New York", Level: tax.LevelState, Active: true,
			Match: tax.GeoMatch{States: []string{"NY"}}},
		tax.Jurisdiction{ID: 6, Name: "Dormant District", Level: tax.LevelSpecialDistrict, Active: false,
			Match: tax.GeoMatch{States: []string{"CA"}}},
	)
	return store
}

func TestResolveJurisdictionsEmptyAddress(t *testing.T) {
	engine := newEngine(caStore())

	js, err := engine.ResolveJurisdictions(context.Background(), "acme", tax.Address{})
	require.NoError(t, err)
	require.Len(t, js, 1)
	require.Equal(t, tax.LevelFederal, js[0].Level)
}

func TestResolveJurisdictionsMultiLevel(t *testing.T) {
	engine := newEngine(caStore())

	addr := tax.Address{Country: "US", State: "ca", County: "los angeles", City: "Los Angeles", PostalCode: "90012"}
	js, err := engine.ResolveJurisdictions(context.Background(), "acme", addr)
	require.NoError(t, err)
	require.Len(t, js, 4)

	// Sorted federal, state, county, city.
	require.Equal(t, tax.LevelFederal, js[0].Level)
	require.Equal(t, "California", js[1].Name)
	require.Equal(t, "Los Angeles County", js[2].Name)
	require.Equal(t, "City of Los Angeles", js[3].Name)
}

func TestResolveJurisdictionsPostalPattern(t *testing.T) {
	engine := newEngine(caStore())

	// State matches but the postal code is outside the city's 900* range.
	addr := tax.Address{Country: "US", State: "CA", City: "Los Angeles", PostalCode: "91201"}
	js, err := engine.ResolveJurisdictions(context.Background(), "acme", addr)
	require.NoError(t, err)
	for _, j := range js {
		require.NotEqual(t, "City of Los Angeles", j.Name)
	}
}

func TestResolveJurisdictionsSkipsInactive(t *testing.T) {
	engine := newEngine(caStore())

	addr := tax.Address{Country: "US", State: "CA"}
	js, err := engine.ResolveJurisdictions(context.Background(), "acme", addr)
	require.NoError(t, err)
	for _, j := range js {
		require.NotEqual(t, "Dormant District", j.Name)
	}
}

func TestResolveJurisdictionsOtherState(t *testing.T) {
	engine := newEngine(caStore())

	addr := tax.Address{Country: "US", State: "NY", City: "Buffalo"}
	js, err := engine.ResolveJurisdictions(context.Background(), "acme", addr)
	require.NoError(t, err)
	require.Len(t, js, 2)
	require.Equal(t, "New York", js[1].Name)
}

func TestResolveJurisdictionsRequiresScope(t *testing.T) {
	engine := newEngine(caStore())

	_, err := engine.ResolveJurisdictions(context.Background(), "", tax.Address{})
	require.ErrorIs(t, err, tax.ErrMissingScope)
}
