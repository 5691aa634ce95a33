package tax_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/tax"
)

// calcDate is the fixed calculation instant used across the engine tests.
// It lands in Q1.
var calcDate = time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptrInt64(v int64) *int64 { return &v }

// fakeStore is an in-memory stand-in for every tax repository.
type fakeStore struct {
	mu sync.Mutex

	jurisdictions []tax.Jurisdiction
	categories    []tax.TaxCategory
	rates         map[int64][]tax.RateDefinition
	usf           map[string]decimal.Decimal
	usfErr        error
	exemptions    []tax.Exemption

	usages    []tax.ExemptionUsage
	insertErr error

	jurisdictionCalls int
}

func (f *fakeStore) ListActiveJurisdictions(_ context.Context, _ string) ([]tax.Jurisdiction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jurisdictionCalls++
	return f.jurisdictions, nil
}

func (f *fakeStore) ListActiveCategories(_ context.Context, _ string) ([]tax.TaxCategory, error) {
	return f.categories, nil
}

func (f *fakeStore) ListActiveByCategory(_ context.Context, _ string, categoryID int64) ([]tax.RateDefinition, error) {
	return f.rates[categoryID], nil
}

func (f *fakeStore) USFRate(_ context.Context, _ string, year, quarter int) (decimal.Decimal, bool, error) {
	if f.usfErr != nil {
		return decimal.Zero, false, f.usfErr
	}
	rate, ok := f.usf[fmt.Sprintf("%d-%d", year, quarter)]
	return rate, ok, nil
}

func (f *fakeStore) ListValidForClient(_ context.Context, _ string, clientID int64, _ time.Time) ([]tax.Exemption, error) {
	out := make([]tax.Exemption, 0, len(f.exemptions))
	for _, ex := range f.exemptions {
		if ex.ClientID == clientID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertUsage(_ context.Context, _ string, usage tax.ExemptionUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, u := range f.usages {
		if u.ExemptionID == usage.ExemptionID && u.DocumentRef == usage.DocumentRef && u.TaxName == usage.TaxName {
			return nil
		}
	}
	f.usages = append(f.usages, usage)
	return nil
}

// newStore builds a fake preloaded with a federal jurisdiction and a
// taxable voice category so the statutory federal lines have an authority.
func newStore() *fakeStore {
	return &fakeStore{
		jurisdictions: []tax.Jurisdiction{
			{ID: 1, Name: "United States", Level: tax.LevelFederal, Active: true},
		},
		categories: []tax.TaxCategory{
			{ID: 10, Name: "Voice Services", Active: true, Taxable: true,
				ServiceTypes: []tax.ServiceType{tax.ServiceLocal, tax.ServiceLongDistance, tax.ServiceInternation}},
			{ID: 11, Name: "VoIP Services", Active: true, Taxable: true,
				ServiceTypes: []tax.ServiceType{tax.ServiceVoIPFixed, tax.ServiceVoIPNomadic}},
			{ID: 12, Name: "Equipment Sales", Active: true, Taxable: false,
				ServiceTypes: []tax.ServiceType{tax.ServiceEquipment}},
		},
		rates: map[int64][]tax.RateDefinition{},
		usf:   map[string]decimal.Decimal{},
	}
}

func newEngine(store *fakeStore) *tax.Engine {
	return &tax.Engine{
		Jurisdictions: store,
		Categories:    store,
		Rates:         store,
		Exemptions:    store,
		Now:           func() time.Time { return calcDate },
	}
}

func baseInput(amount string) tax.CalculationInput {
	return tax.CalculationInput{
		Scope:       "acme",
		Amount:      dec(amount),
		ServiceType: tax.ServiceLocal,
		Date:        calcDate,
	}
}
