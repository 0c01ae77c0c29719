// Copyright 2025 Certen Protocol
//
// Spatial Index Builder (C7): maintains the per-country primary table
// (keyed by district_id, backed by the kvdb adapter over cometbft-db) and an
// in-memory bounding-box index (google/btree, bulk-loaded with a
// longitude-major key) used for point/region lookups ahead of the Merkle
// commitment step in pkg/merkle.

package spatialindex

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/btree"

	"github.com/geomesh/boundary-commit/pkg/commitment"
	"github.com/geomesh/boundary-commit/pkg/geometry"
)

// DistrictEntry is the persisted record for one normalized district within a
// country shard.
type DistrictEntry struct {
	DistrictID        string         `json:"district_id"` // hex
	CountryCode       string         `json:"country_code"`
	UniversalType     string         `json:"universal_type"`
	JurisdictionPath  []string       `json:"jurisdiction_path"`
	LocalName         string         `json:"local_name"`
	CanonicalName     string         `json:"canonical_name"`
	BBox              geometry.BBox  `json:"bbox"`
	GeometryHash      string         `json:"geometry_hash"`
	MetadataHash      string         `json:"metadata_hash"`
	CanonicalGeometry []byte         `json:"canonical_geometry"`
	QualityTier       string         `json:"quality_tier"`
}

// primaryStore is the subset of kvdb.KVAdapter the index needs. Defined here
// so this package does not depend on the cometbft-db driver directly.
type primaryStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Iterate(start, end []byte, fn func(key, value []byte) bool) error
}

func districtKey(countryCode, districtID string) []byte {
	return []byte(fmt.Sprintf("district:%s:%s", countryCode, districtID))
}

func countryPrefix(countryCode string) ([]byte, []byte) {
	start := []byte(fmt.Sprintf("district:%s:", countryCode))
	end := make([]byte, len(start))
	copy(end, start)
	end[len(end)-1]++
	return start, end
}

// rtreeKey orders entries by longitude-major bbox min corner, the key the
// in-memory index is bulk-loaded with.
type rtreeKey struct {
	entry *DistrictEntry
}

func lessRTreeKey(a, b rtreeKey) bool {
	if a.entry.BBox.MinLon != b.entry.BBox.MinLon {
		return a.entry.BBox.MinLon < b.entry.BBox.MinLon
	}
	if a.entry.BBox.MinLat != b.entry.BBox.MinLat {
		return a.entry.BBox.MinLat < b.entry.BBox.MinLat
	}
	return a.entry.DistrictID < b.entry.DistrictID
}

// CountryShard is the loaded spatial index for one country: the persisted
// primary table plus the in-memory bbox tree built over it.
type CountryShard struct {
	CountryCode string
	store       primaryStore
	tree        *btree.BTreeG[rtreeKey]
	order       []string // district_id ascending, the commitment ordering
}

// NewCountryShard opens (or creates) the shard for countryCode against the
// given primary store.
func NewCountryShard(countryCode string, store primaryStore) *CountryShard {
	return &CountryShard{
		CountryCode: countryCode,
		store:       store,
		tree:        btree.NewG(32, lessRTreeKey),
	}
}

// Build writes every entry into the primary table and the in-memory index.
// Entries are sorted by district_id ascending before insertion; this order
// is the one the country Merkle tree is built over (spec.md §4.6:
// "Ordering is lexicographic over district_id. This ordering is part of the
// commitment.").
func (s *CountryShard) Build(entries []DistrictEntry) error {
	sorted := make([]DistrictEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DistrictID < sorted[j].DistrictID })

	s.order = s.order[:0]
	for i := range sorted {
		e := sorted[i]
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("spatialindex: marshal district %s: %w", e.DistrictID, err)
		}
		if err := s.store.Set(districtKey(s.CountryCode, e.DistrictID), raw); err != nil {
			return fmt.Errorf("spatialindex: write district %s: %w", e.DistrictID, err)
		}
		s.tree.ReplaceOrInsert(rtreeKey{entry: &sorted[i]})
		s.order = append(s.order, e.DistrictID)
	}
	return nil
}

// Get fetches a district by id from the primary table.
func (s *CountryShard) Get(districtID string) (*DistrictEntry, error) {
	raw, err := s.store.Get(districtKey(s.CountryCode, districtID))
	if err != nil {
		return nil, fmt.Errorf("spatialindex: get %s: %w", districtID, err)
	}
	if raw == nil {
		return nil, nil
	}
	var e DistrictEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("spatialindex: unmarshal %s: %w", districtID, err)
	}
	return &e, nil
}

// Order returns district IDs in the ascending commitment order established
// by the last Build call.
func (s *CountryShard) Order() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// PrimaryCount walks the primary table's stored key range and returns how
// many districts are persisted for this country.
func (s *CountryShard) PrimaryCount() (int, error) {
	start, end := countryPrefix(s.CountryCode)
	count := 0
	err := s.store.Iterate(start, end, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

// TreeCount returns how many entries the in-memory bbox index holds.
func (s *CountryShard) TreeCount() int {
	return s.tree.Len()
}

// ErrIndexMismatch is returned by CheckConsistency when the primary table and
// the in-memory index disagree on district count, per spec.md §8's
// invariant that the two representations stay in lockstep.
var ErrIndexMismatch = fmt.Errorf("spatialindex: primary table and r-tree index disagree on district count")

// CheckConsistency verifies the primary table and in-memory index agree on
// how many districts are present.
func (s *CountryShard) CheckConsistency() error {
	primary, err := s.PrimaryCount()
	if err != nil {
		return err
	}
	if primary != s.TreeCount() {
		return fmt.Errorf("%w: primary=%d tree=%d", ErrIndexMismatch, primary, s.TreeCount())
	}
	return nil
}

// Query returns every district whose bbox intersects box, scanning the
// in-memory index in longitude-major order and pruning on the fly.
func (s *CountryShard) Query(box geometry.BBox) []*DistrictEntry {
	var out []*DistrictEntry
	s.tree.Ascend(func(k rtreeKey) bool {
		if k.entry.BBox.MinLon > box.MaxLon {
			return false // no further entry can intersect; lon-major order.
		}
		if bboxIntersects(k.entry.BBox, box) {
			out = append(out, k.entry)
		}
		return true
	})
	return out
}

func bboxIntersects(a, b geometry.BBox) bool {
	return a.MinLon <= b.MaxLon && a.MaxLon >= b.MinLon &&
		a.MinLat <= b.MaxLat && a.MaxLat >= b.MinLat
}

// ContentHash returns a deterministic hash of the sorted (district_id,
// geometry_hash) set, written alongside the index file for cross-run
// verification (spec.md §9: "The builder writes a content hash of the
// sorted district set alongside the file for cross-implementation
// verification.").
func (s *CountryShard) ContentHash(entries []DistrictEntry) string {
	sorted := make([]DistrictEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DistrictID < sorted[j].DistrictID })

	parts := make([][]byte, 0, len(sorted)*2)
	for _, e := range sorted {
		parts = append(parts, []byte(e.DistrictID), []byte(e.GeometryHash))
	}
	return commitment.HashHex(parts...)
}
