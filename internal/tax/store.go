package tax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the database dependency is not configured.
var ErrStoreUnavailable = errors.New("tax: store unavailable")

// Store bundles every repository over one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by a pgx connection pool. It satisfies
// all four reference-data repositories plus UsageRepo.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ JurisdictionRepo = (*Store)(nil)
	_ CategoryRepo     = (*Store)(nil)
	_ RateRepo         = (*Store)(nil)
	_ ExemptionRepo    = (*Store)(nil)
	_ UsageRepo        = (*Store)(nil)
)

// ListActiveJurisdictions returns every active jurisdiction for the scope.
func (s *Store) ListActiveJurisdictions(ctx context.Context, scope string) ([]Jurisdiction, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, level, countries, states, counties, cities, postal_patterns, active
FROM jurisdictions WHERE company_id = $1 AND active ORDER BY id`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Jurisdiction
	for rows.Next() {
		var j Jurisdiction
		var level string
		if err := rows.Scan(&j.ID, &j.Name, &level, &j.Match.Countries, &j.Match.States,
			&j.Match.Counties, &j.Match.Cities, &j.Match.PostalPatterns, &j.Active); err != nil {
			return nil, err
		}
		j.Level = JurisdictionLevel(level)
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListActiveCategories returns the active tax category catalog for the scope.
func (s *Store) ListActiveCategories(ctx context.Context, scope string) ([]TaxCategory, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, active, service_types, priority, taxable
FROM tax_categories WHERE company_id = $1 AND active ORDER BY priority, id`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaxCategory
	for rows.Next() {
		var c TaxCategory
		var services []string
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &services, &c.Priority, &c.Taxable); err != nil {
			return nil, err
		}
		c.ServiceTypes = toServiceTypes(services)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListActiveByCategory returns the active rate definitions attached to a
// category, ordered by priority.
func (s *Store) ListActiveByCategory(ctx context.Context, scope string, categoryID int64) ([]RateDefinition, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, jurisdiction_id, category_id, name, tax_type, rate_type,
percentage_rate::text, amount::text, per_line, service_types, level, priority, active
FROM rate_definitions WHERE company_id = $1 AND category_id = $2 AND active ORDER BY priority, id`, scope, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateDefinition
	for rows.Next() {
		var d RateDefinition
		var taxType, rateType, pct, amount, level string
		var services []string
		if err := rows.Scan(&d.ID, &d.JurisdictionID, &d.CategoryID, &d.Name, &taxType, &rateType,
			&pct, &amount, &d.PerLine, &services, &level, &d.Priority, &d.Active); err != nil {
			return nil, err
		}
		d.TaxType = TaxType(taxType)
		d.RateType, err = ParseRateType(rateType)
		if err != nil {
			return nil, fmt.Errorf("rate definition %d: %w", d.ID, err)
		}
		if d.PercentageRate, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("rate definition %d percentage: %w", d.ID, err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("rate definition %d amount: %w", d.ID, err)
		}
		d.ServiceTypes = toServiceTypes(services)
		d.Level = JurisdictionLevel(level)
		out = append(out, d)
	}
	return out, rows.Err()
}

// USFRate returns the contribution factor on file for a quarter, if any.
func (s *Store) USFRate(ctx context.Context, scope string, year, quarter int) (decimal.Decimal, bool, error) {
	if s == nil || s.pool == nil {
		return decimal.Zero, false, ErrStoreUnavailable
	}
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT rate::text FROM usf_rates
WHERE company_id = $1 AND year = $2 AND quarter = $3`, scope, year, quarter).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("usf rate %d-Q%d: %w", year, quarter, err)
	}
	return rate, true, nil
}

// ListValidForClient returns the client's exemptions whose validity window
// contains the given instant.
func (s *Store) ListValidForClient(ctx context.Context, scope string, clientID int64, at time.Time) ([]Exemption, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, client_id, jurisdiction_id, blanket, tax_types,
relief_percent::text, valid_from, valid_to, priority
FROM exemptions WHERE company_id = $1 AND client_id = $2
AND (valid_from IS NULL OR valid_from <= $3) AND (valid_to IS NULL OR valid_to >= $3)
ORDER BY priority, id`, scope, clientID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exemption
	for rows.Next() {
		var e Exemption
		var taxTypes []string
		var relief string
		if err := rows.Scan(&e.ID, &e.ClientID, &e.JurisdictionID, &e.Blanket, &taxTypes,
			&relief, &e.ValidFrom, &e.ValidTo, &e.Priority); err != nil {
			return nil, err
		}
		if e.ReliefPercent, err = decimal.NewFromString(relief); err != nil {
			return nil, fmt.Errorf("exemption %d relief: %w", e.ID, err)
		}
		for _, t := range taxTypes {
			e.TaxTypes = append(e.TaxTypes, TaxType(t))
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertUsage writes one immutable usage row. A repeat of the same
// (exemption, document, tax name) triple hits the unique constraint and is
// treated as already recorded.
func (s *Store) InsertUsage(ctx context.Context, scope string, usage ExemptionUsage) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO exemption_usages
(company_id, exemption_id, document_ref, tax_name, original_tax_amount, exempted_amount, final_tax_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		scope, usage.ExemptionID, usage.DocumentRef, usage.TaxName,
		usage.OriginalAmount.String(), usage.ExemptedAmount.String(), usage.FinalAmount.String(), usage.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil
	}
	return err
}

func toServiceTypes(in []string) []ServiceType {
	if len(in) == 0 {
		return nil
	}
	out := make([]ServiceType, 0, len(in))
	for _, s := range in {
		out = append(out, ServiceType(s))
	}
	return out
}
