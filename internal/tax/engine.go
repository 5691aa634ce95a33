package tax

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/obs"
)

const defaultPrecision = 4

// CalculationInput carries everything a single calculation needs. Scope is
// the company/tenant the reference data belongs to and is always explicit;
// the engine keeps no per-call state.
type CalculationInput struct {
	Scope       string
	Amount      decimal.Decimal
	ServiceType ServiceType
	Address     Address
	ClientID    *int64
	Date        time.Time
	LineCount   int
	Minutes     decimal.Decimal
}

// Validate rejects malformed inputs before any lookup happens.
func (in CalculationInput) Validate() error {
	if strings.TrimSpace(in.Scope) == "" {
		return ErrMissingScope
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if !in.ServiceType.Valid() {
		return fmt.Errorf("%w: unknown service type %q", ErrInvalidInput, in.ServiceType)
	}
	if in.LineCount < 1 {
		return fmt.Errorf("%w: line count must be at least 1", ErrInvalidInput)
	}
	if in.Minutes.IsNegative() {
		return fmt.Errorf("%w: minutes must not be negative", ErrInvalidInput)
	}
	return nil
}

// normalized fills defaults and normalizes fields that feed the cache key.
func (in CalculationInput) normalized(now time.Time) CalculationInput {
	in.Scope = strings.TrimSpace(in.Scope)
	in.Address = in.Address.Normalize()
	if in.Date.IsZero() {
		in.Date = now
	}
	if in.LineCount == 0 {
		in.LineCount = 1
	}
	return in
}

// Engine computes telecom taxes and regulatory fees over read-only
// reference data. It is safe for concurrent use.
type Engine struct {
	Jurisdictions JurisdictionRepo
	Categories    CategoryRepo
	Rates         RateRepo
	Exemptions    ExemptionRepo
	Cache         *Cache
	Logger        *zerolog.Logger
	Now           func() time.Time
	Precision     int32
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) precision() int32 {
	if e.Precision > 0 {
		return e.Precision
	}
	return defaultPrecision
}

func (e *Engine) logger() *zerolog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	l := zerolog.Nop()
	return &l
}

// Calculate runs the full pipeline: cache check, jurisdiction resolution,
// category matching, per-level rate evaluation, exemption application, and
// aggregation. Cache failures degrade to recomputation, never to an error.
func (e *Engine) Calculate(ctx context.Context, in CalculationInput) (*CalculationResult, error) {
	in = in.normalized(e.now())
	if err := in.Validate(); err != nil {
		return nil, err
	}

	key := e.resultKey(in)
	var cached CalculationResult
	if hit, err := e.cacheGet(ctx, key, &cached); err == nil && hit {
		obs.TaxCacheLookups.WithLabelValues("hit").Inc()
		return &cached, nil
	}
	obs.TaxCacheLookups.WithLabelValues("miss").Inc()

	started := time.Now()
	result, err := e.compute(ctx, in)
	obs.TaxCalculationDuration.Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		obs.TaxCalculationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	obs.TaxCalculationsTotal.WithLabelValues("ok").Inc()

	e.cacheSet(ctx, key, result)

	e.logger().Info().
		Str("scope", in.Scope).
		Str("service_type", string(in.ServiceType)).
		Str("base_amount", result.BaseAmount.String()).
		Str("total_tax", result.TotalTaxAmount.String()).
		Str("final_amount", result.FinalAmount.String()).
		Int("jurisdictions", len(result.Jurisdictions)).
		Msg("tax calculation")

	return result, nil
}

func (e *Engine) compute(ctx context.Context, in CalculationInput) (*CalculationResult, error) {
	js, err := e.ResolveJurisdictions(ctx, in.Scope, in.Address)
	if err != nil {
		return nil, err
	}

	category, taxable, err := e.MatchCategory(ctx, in.Scope, in.ServiceType)
	if err != nil {
		return nil, err
	}
	if !taxable {
		return e.zeroResult(in, js), nil
	}

	exemptions, err := e.ResolveExemptions(ctx, in.Scope, in.ClientID, js, in)
	if err != nil {
		return nil, err
	}

	defs, err := e.listRates(ctx, in.Scope, category.ID)
	if err != nil {
		return nil, err
	}

	federal, err := e.federalLines(ctx, in.Scope, defs, js, in)
	if err != nil {
		return nil, err
	}
	state, err := e.stateLines(defs, js, in)
	if err != nil {
		return nil, err
	}
	local, err := e.localLines(defs, js, in)
	if err != nil {
		return nil, err
	}

	applied := e.applyExemptions(federal, exemptions)
	applied = append(applied, e.applyExemptions(state, exemptions)...)
	applied = append(applied, e.applyExemptions(local, exemptions)...)

	return e.aggregate(in, js, federal, state, local, applied), nil
}

// aggregate merges the per-level lines into the final result and enforces
// the conservation invariants.
func (e *Engine) aggregate(in CalculationInput, js []Jurisdiction, federal, state, local []TaxLine, applied []ExemptionApplied) *CalculationResult {
	breakdown := make([]TaxLine, 0, len(federal)+len(state)+len(local))
	breakdown = append(breakdown, federal...)
	breakdown = append(breakdown, state...)
	breakdown = append(breakdown, local...)

	total := decimal.Zero
	for _, line := range breakdown {
		total = total.Add(line.TaxAmount)
	}
	if applied == nil {
		applied = []ExemptionApplied{}
	}

	return &CalculationResult{
		BaseAmount:        in.Amount,
		ServiceType:       in.ServiceType,
		CalculationDate:   in.Date.UTC(),
		FederalTaxes:      federal,
		StateTaxes:        state,
		LocalTaxes:        local,
		ExemptionsApplied: applied,
		TotalTaxAmount:    total,
		FinalAmount:       in.Amount.Add(total),
		Breakdown:         breakdown,
		Jurisdictions:     summarize(js),
	}
}

func (e *Engine) zeroResult(in CalculationInput, js []Jurisdiction) *CalculationResult {
	return &CalculationResult{
		BaseAmount:        in.Amount,
		ServiceType:       in.ServiceType,
		CalculationDate:   in.Date.UTC(),
		FederalTaxes:      []TaxLine{},
		StateTaxes:        []TaxLine{},
		LocalTaxes:        []TaxLine{},
		ExemptionsApplied: []ExemptionApplied{},
		TotalTaxAmount:    decimal.Zero,
		FinalAmount:       in.Amount,
		Breakdown:         []TaxLine{},
		Jurisdictions:     summarize(js),
	}
}

// resultKey hashes the normalized inputs plus the calendar day so that
// identical requests on the same day share one cache entry.
func (e *Engine) resultKey(in CalculationInput) string {
	client := "-"
	if in.ClientID != nil {
		client = strconv.FormatInt(*in.ClientID, 10)
	}
	parts := strings.Join([]string{
		in.Scope,
		in.Amount.Round(e.precision()).String(),
		string(in.ServiceType),
		in.Address.Hash(),
		client,
		in.Date.UTC().Format("2006-01-02"),
		strconv.Itoa(in.LineCount),
		in.Minutes.String(),
	}, "|")
	sum := sha256.Sum256([]byte(parts))
	return "tax:calc:" + in.Scope + ":" + hex.EncodeToString(sum[:16])
}

func (e *Engine) cacheGet(ctx context.Context, key string, dst any) (bool, error) {
	if e.Cache == nil {
		return false, nil
	}
	hit, err := e.Cache.GetJSON(ctx, key, dst)
	if err != nil {
		e.logger().Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false, nil
	}
	return hit, nil
}

func (e *Engine) cacheSet(ctx context.Context, key string, v any) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.SetJSON(ctx, key, v); err != nil {
		e.logger().Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Summarize aggregates totals across a batch of prior results: overall base,
// tax, and final amounts, tax by level, and the union of jurisdictions.
func Summarize(results []CalculationResult) Summary {
	s := Summary{
		Count:      len(results),
		TotalBase:  decimal.Zero,
		TotalTax:   decimal.Zero,
		TotalFinal: decimal.Zero,
		TaxByLevel: map[JurisdictionLevel]decimal.Decimal{},
	}
	seen := map[int64]bool{}
	for _, r := range results {
		s.TotalBase = s.TotalBase.Add(r.BaseAmount)
		s.TotalTax = s.TotalTax.Add(r.TotalTaxAmount)
		s.TotalFinal = s.TotalFinal.Add(r.FinalAmount)
		for _, line := range r.Breakdown {
			level := line.Level
			if level.Local() {
				level = "local"
			}
			cur, ok := s.TaxByLevel[level]
			if !ok {
				cur = decimal.Zero
			}
			s.TaxByLevel[level] = cur.Add(line.TaxAmount)
		}
		for _, j := range r.Jurisdictions {
			if !seen[j.ID] {
				seen[j.ID] = true
				s.Jurisdictions = append(s.Jurisdictions, j)
			}
		}
	}
	sort.Slice(s.Jurisdictions, func(i, k int) bool { return s.Jurisdictions[i].ID < s.Jurisdictions[k].ID })
	return s
}
