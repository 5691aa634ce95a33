package tax_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/tax"
)

func TestFixedPerLineRate(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "CA 911 Surcharge",
			TaxType: tax.TaxE911, RateType: tax.RateFixed, Amount: dec("0.30"), PerLine: true,
			Level: tax.LevelState, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	in.LineCount = 5
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, result.StateTaxes, 1)
	require.True(t, result.StateTaxes[0].TaxAmount.Equal(dec("1.5")), "e911 = %s", result.StateTaxes[0].TaxAmount)
}

func TestFixedFlatRateIgnoresLineCount(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "Flat Regulatory Fee",
			TaxType: tax.TaxStateTax, RateType: tax.RateFixed, Amount: dec("2.50"),
			Level: tax.LevelState, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	in.LineCount = 7
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.StateTaxes[0].TaxAmount.Equal(dec("2.50")))
}

func TestUsageRateScalesWithMinutes(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "Intrastate Access Charge",
			TaxType: tax.TaxStateTax, RateType: tax.RateUsage, Amount: dec("0.005"),
			Level: tax.LevelState, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	in.Minutes = dec("320")
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.StateTaxes[0].TaxAmount.Equal(dec("1.6")), "usage = %s", result.StateTaxes[0].TaxAmount)
}

func TestUsageRateWithoutMinutesProducesNoLine(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "Intrastate Access Charge",
			TaxType: tax.TaxStateTax, RateType: tax.RateUsage, Amount: dec("0.005"),
			Level: tax.LevelState, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, result.StateTaxes)
}

func TestInactiveAndNonMatchingRatesSkipped(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "Retired Fee",
			TaxType: tax.TaxStateTax, RateType: tax.RatePercentage, PercentageRate: dec("1"),
			Level: tax.LevelState, Active: false},
		{ID: 101, JurisdictionID: 2, CategoryID: 10, Name: "Data Only Fee",
			TaxType: tax.TaxStateTax, RateType: tax.RatePercentage, PercentageRate: dec("1"),
			ServiceTypes: []tax.ServiceType{tax.ServiceData}, Level: tax.LevelState, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, result.StateTaxes)
}

func TestStateLinesSortedByPriority(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 2, CategoryID: 10, Name: "Second",
			TaxType: tax.TaxStateTax, RateType: tax.RatePercentage, PercentageRate: dec("1"),
			Level: tax.LevelState, Priority: 20, Active: true},
		{ID: 101, JurisdictionID: 2, CategoryID: 10, Name: "First",
			TaxType: tax.TaxStateTax, RateType: tax.RatePercentage, PercentageRate: dec("2"),
			Level: tax.LevelState, Priority: 10, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA"}
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.StateTaxes, 2)
	require.Equal(t, "First", result.StateTaxes[0].Name)
	require.Equal(t, "Second", result.StateTaxes[1].Name)
}

func TestCountyAndCityEachProduceLocalLine(t *testing.T) {
	store := caStore()
	store.rates[10] = []tax.RateDefinition{
		{ID: 100, JurisdictionID: 3, CategoryID: 10, Name: "LA County Telecom Surcharge",
			TaxType: tax.TaxE911, RateType: tax.RateFixed, Amount: dec("1"),
			Level: tax.LevelCounty, Active: true},
		{ID: 101, JurisdictionID: 4, CategoryID: 10, Name: "LA City Utility Users Tax",
			TaxType: tax.TaxLocalTax, RateType: tax.RatePercentage, PercentageRate: dec("9"),
			Level: tax.LevelCity, Active: true},
	}
	engine := newEngine(store)

	in := baseInput("100")
	in.Address = tax.Address{Country: "US", State: "CA", County: "Los Angeles", City: "Los Angeles", PostalCode: "90012"}
	result, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	// Both the county and the city line land in the local bucket. Equal
	// priorities tie-break on jurisdiction name, so collect by name.
	require.Len(t, result.LocalTaxes, 2)
	byName := map[string]decimal.Decimal{}
	for _, line := range result.LocalTaxes {
		byName[line.Name] = line.TaxAmount
	}
	require.True(t, byName["LA County Telecom Surcharge"].Equal(dec("1")))
	require.True(t, byName["LA City Utility Users Tax"].Equal(dec("9")))
}

func TestParseRateType(t *testing.T) {
	for _, valid := range []string{"percentage", "fixed", "usage"} {
		rt, err := tax.ParseRateType(valid)
		require.NoError(t, err)
		require.True(t, rt.Valid())
	}
	_, err := tax.ParseRateType("tiered")
	require.Error(t, err)
}
