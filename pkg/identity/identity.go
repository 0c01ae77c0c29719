// Copyright 2025 Certen Protocol
//
// District Identity Builder (C6): derives the deterministic district_id for
// a normalized district and detects hash collisions within a country shard.
// district_id = first 16 bytes of SHA-256(canonical(jurisdiction_path) ‖
// lowercase_trim(local_name) ‖ canonical_geometry_bytes).

package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/geomesh/boundary-commit/pkg/commitment"
)

// IDLength is the byte length of a district_id (spec.md §9: "16-byte
// prefix").
const IDLength = 16

// Input is the set of fields that feed into district_id derivation.
type Input struct {
	JurisdictionPath  []string // e.g. ["US", "HI", "Honolulu"]
	LocalName         string
	CanonicalGeometry []byte // already-canonicalized geometry bytes, e.g. from pkg/geometry.CanonicalBytes
}

// Derive computes the 16-byte district_id for a normalized district.
func Derive(in Input) ([]byte, error) {
	jurisdictionBytes, err := commitment.MarshalCanonical(in.JurisdictionPath)
	if err != nil {
		return nil, fmt.Errorf("identity: canonicalize jurisdiction path: %w", err)
	}

	normalizedName := strings.ToLower(strings.TrimSpace(in.LocalName))

	h := sha256.New()
	h.Write(jurisdictionBytes)
	h.Write([]byte(normalizedName))
	h.Write(in.CanonicalGeometry)
	full := h.Sum(nil)

	return full[:IDLength], nil
}

// DeriveHex is Derive with the result hex-encoded, the representation used
// for district_id in JSON-facing structures and as the primary-table key.
func DeriveHex(in Input) (string, error) {
	id, err := Derive(in)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id), nil
}

// CollisionError reports two districts within the same country shard that
// derived the same district_id. Per spec.md §9 this is fatal for the run.
type CollisionError struct {
	DistrictID  string
	FirstIndex  int
	SecondIndex int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("identity: district_id collision %s between districts at index %d and %d", e.DistrictID, e.FirstIndex, e.SecondIndex)
}

// CollisionDetector accumulates district IDs observed within one country
// shard and reports the first collision encountered, if any. It is not safe
// for concurrent use; callers processing districts in parallel must
// serialize calls to Check (or use one detector per goroutine and merge).
type CollisionDetector struct {
	seen map[string]int
}

// NewCollisionDetector returns an empty detector sized for n expected
// districts.
func NewCollisionDetector(n int) *CollisionDetector {
	return &CollisionDetector{seen: make(map[string]int, n)}
}

// Check records districtIDHex at index and returns a *CollisionError if it
// was already seen at a different index.
func (d *CollisionDetector) Check(districtIDHex string, index int) error {
	if prev, ok := d.seen[districtIDHex]; ok {
		return &CollisionError{DistrictID: districtIDHex, FirstIndex: prev, SecondIndex: index}
	}
	d.seen[districtIDHex] = index
	return nil
}

// Count returns the number of distinct district IDs recorded so far.
func (d *CollisionDetector) Count() int {
	return len(d.seen)
}
