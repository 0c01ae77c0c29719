// Copyright 2025 Certen Protocol
//
// Reference data tables (C5 + shared inputs to C3): country bounding boxes,
// first-level subdivision bounding boxes, and authoritative district counts
// per jurisdiction. Shipped as YAML and loaded once at startup into
// immutable in-memory tables, per spec.md §5 ("reference data tables...
// immutable after process start; concurrent reads require no locking").

package reference

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/geomesh/boundary-commit/pkg/geometry"
)

// CountBoundsEntry is one row of the authoritative feature-count table.
type CountBoundsEntry struct {
	JurisdictionID string `yaml:"jurisdiction_id"`
	ExpectedCount  int    `yaml:"expected_count"`
}

// BBoxEntry is one row of a bounding-box table (country or subdivision).
type BBoxEntry struct {
	ID     string  `yaml:"id"` // ISO 3166-1 alpha-2 for countries, "<CC>-<subdivision>" for subdivisions
	MinLon float64 `yaml:"min_lon"`
	MinLat float64 `yaml:"min_lat"`
	MaxLon float64 `yaml:"max_lon"`
	MaxLat float64 `yaml:"max_lat"`
	// MultiSubdivision marks a jurisdiction that legitimately spans more
	// than one subdivision (e.g. a multi-county transit authority), used by
	// the geographic validator's cross-jurisdiction check.
	MultiSubdivision bool `yaml:"multi_subdivision,omitempty"`
}

func (e BBoxEntry) bbox() geometry.BBox {
	return geometry.BBox{MinLon: e.MinLon, MinLat: e.MinLat, MaxLon: e.MaxLon, MaxLat: e.MaxLat}
}

// BBox returns the entry's bounding box as a geometry.BBox, for callers
// outside this package (e.g. the geographic validator).
func (e BBoxEntry) BBox() geometry.BBox {
	return e.bbox()
}

// rawTables is the on-disk YAML shape.
type rawTables struct {
	Countries     []BBoxEntry        `yaml:"countries"`
	Subdivisions  []BBoxEntry        `yaml:"subdivisions"`
	Counts        []CountBoundsEntry `yaml:"counts"`
}

// Tables is the immutable, loaded reference data set.
type Tables struct {
	countries    map[string]geometry.BBox
	subdivisions map[string]BBoxEntry
	counts       map[string]int
}

// Load parses YAML bytes into an immutable Tables value.
func Load(data []byte) (*Tables, error) {
	var raw rawTables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("reference: parse yaml: %w", err)
	}

	t := &Tables{
		countries:    make(map[string]geometry.BBox, len(raw.Countries)),
		subdivisions: make(map[string]BBoxEntry, len(raw.Subdivisions)),
		counts:       make(map[string]int, len(raw.Counts)),
	}
	for _, c := range raw.Countries {
		t.countries[c.ID] = c.bbox()
	}
	for _, s := range raw.Subdivisions {
		t.subdivisions[s.ID] = s
	}
	for _, c := range raw.Counts {
		t.counts[c.JurisdictionID] = c.ExpectedCount
	}
	return t, nil
}

// CountryBBox returns the authoritative bbox for an ISO 3166-1 alpha-2 code.
func (t *Tables) CountryBBox(countryCode string) (geometry.BBox, bool) {
	b, ok := t.countries[countryCode]
	return b, ok
}

// SubdivisionBBox returns the authoritative bbox for a subdivision id
// (e.g. "US-HI"), along with whether it is marked multi-subdivision.
func (t *Tables) SubdivisionBBox(subdivisionID string) (BBoxEntry, bool) {
	e, ok := t.subdivisions[subdivisionID]
	return e, ok
}

// ExpectedCount returns the authoritative feature count for a jurisdiction,
// if one is shipped.
func (t *Tables) ExpectedCount(jurisdictionID string) (int, bool) {
	c, ok := t.counts[jurisdictionID]
	return c, ok
}

// DefaultCountTolerance is the default acceptable deviation from reference
// counts (spec.md §6 count_validator_tolerance).
const DefaultCountTolerance = 2
