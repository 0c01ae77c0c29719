// Copyright 2025 Certen Protocol
//
// District Type Taxonomy: a closed, universal set of district types, plus a
// data-driven mapping from country-specific local field values onto exactly
// one universal tag. Per spec.md §9 design note, the mapping is data, not
// code, so adding a new country's vocabulary never requires a binary change.

package taxonomy

import "fmt"

// UniversalType is one of the closed set of district categories.
type UniversalType string

const (
	CityCouncil                 UniversalType = "city_council"
	CountyCommission            UniversalType = "county_commission"
	StateLegislativeUpper       UniversalType = "state_legislative_upper"
	StateLegislativeLower       UniversalType = "state_legislative_lower"
	FederalLegislative          UniversalType = "federal_legislative"
	SchoolDistrict              UniversalType = "school_district"
	PolicePrecinct              UniversalType = "police_precinct"
	FireDistrict                UniversalType = "fire_district"
	WaterDistrict               UniversalType = "water_district"
	TransitDistrict             UniversalType = "transit_district"
	SanitationDistrict          UniversalType = "sanitation_district"
	HousingAuthority            UniversalType = "housing_authority"
	CommunityBoard              UniversalType = "community_board"
	BusinessImprovementDistrict UniversalType = "business_improvement_district"
	Other                       UniversalType = "other"
)

// Valid reports whether t is one of the closed universal types.
func (t UniversalType) Valid() bool {
	switch t {
	case CityCouncil, CountyCommission, StateLegislativeUpper, StateLegislativeLower,
		FederalLegislative, SchoolDistrict, PolicePrecinct, FireDistrict, WaterDistrict,
		TransitDistrict, SanitationDistrict, HousingAuthority, CommunityBoard,
		BusinessImprovementDistrict, Other:
		return true
	default:
		return false
	}
}

// Mapping maps a (country_code, local_type_field) pair onto exactly one
// universal type. Entries are loaded at startup from this package's embedded
// data/taxonomy.yaml (LoadDefault) or an operator-supplied file (Load) and
// treated as immutable thereafter.
type Mapping struct {
	entries map[string]UniversalType // key: "<ISO2>:<local_type lowercased>"
}

// NewMapping builds a Mapping from a flat list of rules.
func NewMapping(rules []Rule) (*Mapping, error) {
	m := &Mapping{entries: make(map[string]UniversalType, len(rules))}
	for _, r := range rules {
		if !r.Universal.Valid() {
			return nil, fmt.Errorf("taxonomy: rule %s/%s maps to unknown universal type %q", r.CountryCode, r.LocalType, r.Universal)
		}
		m.entries[key(r.CountryCode, r.LocalType)] = r.Universal
	}
	return m, nil
}

// Rule is one row of the mapping table, as loaded from YAML reference data.
type Rule struct {
	CountryCode string        `yaml:"country_code"`
	LocalType   string        `yaml:"local_type"`
	Universal   UniversalType `yaml:"universal_type"`
}

func key(countryCode, localType string) string {
	return countryCode + ":" + lower(localType)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ErrUnmapped is returned by Resolve when no rule matches; callers record the
// source field in provenance rather than guessing at a universal type.
var ErrUnmapped = fmt.Errorf("taxonomy: no mapping for local type")

// Resolve maps a declared local type to its universal tag. Unknown fields
// are not silently defaulted to Other — the spec requires unknown fields go
// into provenance, not into the commitment, so callers must handle
// ErrUnmapped explicitly (typically by rejecting the feature, not the
// dataset).
func (m *Mapping) Resolve(countryCode, localType string) (UniversalType, error) {
	if u, ok := m.entries[key(countryCode, localType)]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnmapped, countryCode, localType)
}
