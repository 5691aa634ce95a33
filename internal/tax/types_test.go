package tax_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/tax"
)

func TestAddressHashIsSpellingInsensitive(t *testing.T) {
	a := tax.Address{Country: "us", State: " ca ", City: "los angeles"}
	b := tax.Address{Country: "US", State: "CA", City: "LOS ANGELES"}
	require.Equal(t, a.Hash(), b.Hash())

	c := tax.Address{Country: "US", State: "NY"}
	require.NotEqual(t, a.Hash(), c.Hash())
}

func TestAddressEmpty(t *testing.T) {
	require.True(t, tax.Address{}.Empty())
	require.True(t, tax.Address{State: "   "}.Empty())
	require.False(t, tax.Address{PostalCode: "90012"}.Empty())
}

func TestCategoryAppliesTo(t *testing.T) {
	all := tax.TaxCategory{}
	require.True(t, all.AppliesTo(tax.ServiceData))

	voice := tax.TaxCategory{ServiceTypes: []tax.ServiceType{tax.ServiceLocal}}
	require.True(t, voice.AppliesTo(tax.ServiceLocal))
	require.False(t, voice.AppliesTo(tax.ServiceData))
}

func TestExemptionCovers(t *testing.T) {
	everything := tax.Exemption{}
	require.True(t, everything.Covers(tax.TaxExcise))

	scoped := tax.Exemption{TaxTypes: []tax.TaxType{tax.TaxUSF, tax.TaxE911}}
	require.True(t, scoped.Covers(tax.TaxUSF))
	require.False(t, scoped.Covers(tax.TaxExcise))
}

func TestServiceTypeValid(t *testing.T) {
	require.True(t, tax.ServiceVoIPNomadic.Valid())
	require.False(t, tax.ServiceType("carrier_pigeon").Valid())
}
