package tax

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType classifies the billed telecom service for tax purposes.
type ServiceType string

const (
	ServiceLocal        ServiceType = "local"
	ServiceLongDistance ServiceType = "long_distance"
	ServiceInternation  ServiceType = "international"
	ServiceVoIPFixed    ServiceType = "voip_fixed"
	ServiceVoIPNomadic  ServiceType = "voip_nomadic"
	ServiceData         ServiceType = "data"
	ServiceEquipment    ServiceType = "equipment"
)

// Valid reports whether the service type is one of the known variants.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceLocal, ServiceLongDistance, ServiceInternation,
		ServiceVoIPFixed, ServiceVoIPNomadic, ServiceData, ServiceEquipment:
		return true
	}
	return false
}

// JurisdictionLevel identifies where a taxing authority sits.
type JurisdictionLevel string

const (
	LevelFederal         JurisdictionLevel = "federal"
	LevelState           JurisdictionLevel = "state"
	LevelCounty          JurisdictionLevel = "county"
	LevelCity            JurisdictionLevel = "city"
	LevelMunicipality    JurisdictionLevel = "municipality"
	LevelSpecialDistrict JurisdictionLevel = "special_district"
)

// Local reports whether the level is below state.
func (l JurisdictionLevel) Local() bool {
	switch l {
	case LevelCounty, LevelCity, LevelMunicipality, LevelSpecialDistrict:
		return true
	}
	return false
}

// RateType is the closed set of rate formulas. Every switch over it must
// handle all three variants and error on anything else.
type RateType string

const (
	RatePercentage RateType = "percentage"
	RateFixed      RateType = "fixed"
	RateUsage      RateType = "usage"
)

// Valid reports whether the rate type is a known variant.
func (r RateType) Valid() bool {
	return r == RatePercentage || r == RateFixed || r == RateUsage
}

// TaxType names the tax or regulatory fee a line represents.
type TaxType string

const (
	TaxExcise        TaxType = "excise"
	TaxUSF           TaxType = "usf"
	TaxE911          TaxType = "e911"
	TaxStateTax      TaxType = "state_tax"
	TaxLocalTax      TaxType = "local_tax"
	TaxRelayService  TaxType = "relay_service"
	TaxNumberPooling TaxType = "number_pooling"
)

// Address is the service location a charge is taxed against. All fields are
// optional; an empty address yields federal-only taxation.
type Address struct {
	Country    string `json:"country,omitempty"`
	State      string `json:"state,omitempty"`
	County     string `json:"county,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Empty reports whether no component of the address is set.
func (a Address) Empty() bool {
	return a.Normalize() == Address{}
}

// Normalize trims whitespace and upper-cases every component so that two
// spellings of the same location hash identically.
func (a Address) Normalize() Address {
	norm := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	return Address{
		Country:    norm(a.Country),
		State:      norm(a.State),
		County:     norm(a.County),
		City:       norm(a.City),
		PostalCode: norm(a.PostalCode),
	}
}

// Hash returns a stable digest of the normalized address, used in cache keys.
func (a Address) Hash() string {
	n := a.Normalize()
	sum := sha256.Sum256([]byte(strings.Join([]string{n.Country, n.State, n.County, n.City, n.PostalCode}, "|")))
	return hex.EncodeToString(sum[:8])
}

// GeoMatch is a jurisdiction's geographic predicate. Empty slices act as
// wildcards for that component; postal patterns support a trailing "*".
type GeoMatch struct {
	Countries      []string `json:"countries,omitempty"`
	States         []string `json:"states,omitempty"`
	Counties       []string `json:"counties,omitempty"`
	Cities         []string `json:"cities,omitempty"`
	PostalPatterns []string `json:"postal_patterns,omitempty"`
}

// Jurisdiction is a taxing authority tied to a geography.
type Jurisdiction struct {
	ID     int64             `json:"id"`
	Name   string            `json:"name"`
	Level  JurisdictionLevel `json:"level"`
	Match  GeoMatch          `json:"match"`
	Active bool              `json:"active"`
}

// TaxCategory groups service types that share a tax treatment. An empty
// ServiceTypes set matches every service type.
type TaxCategory struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Active       bool          `json:"active"`
	ServiceTypes []ServiceType `json:"service_types,omitempty"`
	Priority     int           `json:"priority"`
	Taxable      bool          `json:"taxable"`
}

// AppliesTo reports whether the category governs the given service type.
func (c TaxCategory) AppliesTo(st ServiceType) bool {
	if len(c.ServiceTypes) == 0 {
		return true
	}
	for _, s := range c.ServiceTypes {
		if s == st {
			return true
		}
	}
	return false
}

// RateDefinition is a single tax or fee rule attached to a jurisdiction and
// category. For fixed rules Amount is the flat charge (scaled by line count
// when PerLine is set); for usage rules Amount is the per-minute rate.
type RateDefinition struct {
	ID             int64             `json:"id"`
	JurisdictionID int64             `json:"jurisdiction_id"`
	CategoryID     int64             `json:"category_id"`
	Name           string            `json:"name"`
	TaxType        TaxType           `json:"tax_type"`
	RateType       RateType          `json:"rate_type"`
	PercentageRate decimal.Decimal   `json:"percentage_rate"`
	Amount         decimal.Decimal   `json:"amount"`
	PerLine        bool              `json:"per_line"`
	ServiceTypes   []ServiceType     `json:"service_types,omitempty"`
	Level          JurisdictionLevel `json:"level"`
	Priority       int               `json:"priority"`
	Active         bool              `json:"active"`
}

// AppliesTo reports whether the rule covers the given service type.
func (r RateDefinition) AppliesTo(st ServiceType) bool {
	if len(r.ServiceTypes) == 0 {
		return true
	}
	for _, s := range r.ServiceTypes {
		if s == st {
			return true
		}
	}
	return false
}

// Exemption is a client's relief from one or more tax types, either blanket
// or scoped to a single jurisdiction. ReliefPercent expresses how much of a
// matching line is forgiven (100 = full relief).
type Exemption struct {
	ID             int64           `json:"id"`
	ClientID       int64           `json:"client_id"`
	JurisdictionID *int64          `json:"jurisdiction_id,omitempty"`
	Blanket        bool            `json:"blanket"`
	TaxTypes       []TaxType       `json:"tax_types,omitempty"`
	ReliefPercent  decimal.Decimal `json:"relief_percent"`
	ValidFrom      *time.Time      `json:"valid_from,omitempty"`
	ValidTo        *time.Time      `json:"valid_to,omitempty"`
	Priority       int             `json:"priority"`
}

// Covers reports whether the exemption applies to the given tax type. An
// empty TaxTypes set covers everything.
func (e Exemption) Covers(tt TaxType) bool {
	if len(e.TaxTypes) == 0 {
		return true
	}
	for _, t := range e.TaxTypes {
		if t == tt {
			return true
		}
	}
	return false
}

// ValidAt reports whether the exemption's validity window contains ts.
func (e Exemption) ValidAt(ts time.Time) bool {
	if e.ValidFrom != nil && ts.Before(*e.ValidFrom) {
		return false
	}
	if e.ValidTo != nil && ts.After(*e.ValidTo) {
		return false
	}
	return true
}

// TaxLine is one itemized tax or fee on the breakdown.
type TaxLine struct {
	Name           string            `json:"tax_name"`
	TaxType        TaxType           `json:"tax_type"`
	RateType       RateType          `json:"rate_type"`
	Rate           decimal.Decimal   `json:"rate"`
	BaseAmount     decimal.Decimal   `json:"base_amount"`
	TaxAmount      decimal.Decimal   `json:"tax_amount"`
	ExemptedAmount decimal.Decimal   `json:"exempted_amount"`
	Jurisdiction   string            `json:"jurisdiction"`
	Level          JurisdictionLevel `json:"level"`

	priority int
}

// ExemptionApplied records a single exemption hit on a tax line.
type ExemptionApplied struct {
	ExemptionID    int64           `json:"exemption_id"`
	TaxName        string          `json:"tax_name"`
	TaxType        TaxType         `json:"tax_type"`
	Jurisdiction   string          `json:"jurisdiction"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	ExemptedAmount decimal.Decimal `json:"exempted_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// JurisdictionSummary is the slim jurisdiction view embedded in results.
type JurisdictionSummary struct {
	ID    int64             `json:"id"`
	Name  string            `json:"name"`
	Level JurisdictionLevel `json:"level"`
}

// CalculationResult is the engine's full, immutable answer for one request.
type CalculationResult struct {
	BaseAmount        decimal.Decimal       `json:"base_amount"`
	ServiceType       ServiceType           `json:"service_type"`
	CalculationDate   time.Time             `json:"calculation_date"`
	FederalTaxes      []TaxLine             `json:"federal_taxes"`
	StateTaxes        []TaxLine             `json:"state_taxes"`
	LocalTaxes        []TaxLine             `json:"local_taxes"`
	ExemptionsApplied []ExemptionApplied    `json:"exemptions_applied"`
	TotalTaxAmount    decimal.Decimal       `json:"total_tax_amount"`
	FinalAmount       decimal.Decimal       `json:"final_amount"`
	Breakdown         []TaxLine             `json:"tax_breakdown"`
	Jurisdictions     []JurisdictionSummary `json:"jurisdictions"`
}

// ExemptionUsage is the immutable audit row written when an applied
// exemption is billed against a document.
type ExemptionUsage struct {
	ID             int64           `json:"id"`
	ExemptionID    int64           `json:"exemption_id"`
	DocumentRef    string          `json:"document_ref"`
	TaxName        string          `json:"tax_name"`
	OriginalAmount decimal.Decimal `json:"original_tax_amount"`
	ExemptedAmount decimal.Decimal `json:"exempted_amount"`
	FinalAmount    decimal.Decimal `json:"final_tax_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Summary aggregates totals across a batch of prior results.
type Summary struct {
	Count         int                                   `json:"count"`
	TotalBase     decimal.Decimal                       `json:"total_base_amount"`
	TotalTax      decimal.Decimal                       `json:"total_tax_amount"`
	TotalFinal    decimal.Decimal                       `json:"total_final_amount"`
	TaxByLevel    map[JurisdictionLevel]decimal.Decimal `json:"tax_by_level"`
	Jurisdictions []JurisdictionSummary                 `json:"jurisdictions"`
}

func (s ServiceType) String() string { return string(s) }

func (r RateType) String() string { return string(r) }

// ParseRateType converts a stored string into a RateType, rejecting unknown
// values instead of letting them silently produce no lines.
func ParseRateType(s string) (RateType, error) {
	rt := RateType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("tax: unknown rate type %q", s)
	}
	return rt, nil
}
