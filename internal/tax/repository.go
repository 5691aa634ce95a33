package tax

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned when a calculation request fails validation.
	ErrInvalidInput = errors.New("tax: invalid input")
	// ErrMissingScope is returned when no company scope accompanies a call.
	ErrMissingScope = errors.New("tax: company scope is required")
)

// JurisdictionRepo exposes the read-only jurisdiction reference table.
type JurisdictionRepo interface {
	ListActiveJurisdictions(ctx context.Context, scope string) ([]Jurisdiction, error)
}

// CategoryRepo exposes the read-only tax category catalog.
type CategoryRepo interface {
	ListActiveCategories(ctx context.Context, scope string) ([]TaxCategory, error)
}

// RateRepo exposes rate definitions and the dated USF contribution factors.
type RateRepo interface {
	ListActiveByCategory(ctx context.Context, scope string, categoryID int64) ([]RateDefinition, error)
	// USFRate returns the contribution factor on file for a quarter. The
	// second value reports whether a factor exists for that quarter.
	USFRate(ctx context.Context, scope string, year, quarter int) (decimal.Decimal, bool, error)
}

// ExemptionRepo exposes client exemptions valid at a point in time.
type ExemptionRepo interface {
	ListValidForClient(ctx context.Context, scope string, clientID int64, at time.Time) ([]Exemption, error)
}

// UsageRepo persists exemption usage audit rows.
type UsageRepo interface {
	// InsertUsage writes one usage row. Implementations must treat a repeat
	// of the same (exemption, document, tax name) triple as a no-op so that
	// retries stay idempotent.
	InsertUsage(ctx context.Context, scope string, usage ExemptionUsage) error
}
