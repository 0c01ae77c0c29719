// Copyright 2025 Certen Protocol
//
// Normalize orchestrates the full C4 pipeline: reproject, clean, orient,
// repair, simplify, round — in that fixed order, per spec.md §4.3. The
// pipeline is deterministic: the same input feature always yields
// byte-identical output, which is what testable-property 1 (idempotence of
// C4) and round-trip property depend on.

package geometry

import (
	"fmt"

	"github.com/geomesh/boundary-commit/pkg/commitment"
)

// Options configures the normalizer's tunable parameters (spec.md §6
// Configuration inputs: simplification_tolerance_deg, coordinate_precision_digits).
type Options struct {
	SimplificationToleranceDeg float64
	CoordinatePrecisionDigits  int
}

// DefaultOptions returns the spec's default tunables.
func DefaultOptions() Options {
	return Options{
		SimplificationToleranceDeg: DefaultSimplificationToleranceDeg,
		CoordinatePrecisionDigits:  DefaultCoordinatePrecisionDigits,
	}
}

// Result is the outcome of normalizing one feature's geometry.
type Result struct {
	Geometry     MultiPolygon
	BBox         BBox
	Warnings     []string
	UsedFallback bool // true if simplification broke topology and we backed off to pre-simplification geometry
}

// Normalize runs the full C4 pipeline over a single feature's geometry.
// Returns a rejection error (wrapping one of the Err* sentinels) for
// dataset/feature-level failures the caller must record in provenance.
func Normalize(raw MultiPolygon, declaredCRS string, opts Options) (*Result, error) {
	reprojected, err := ReprojectToWGS84(raw, declaredCRS)
	if err != nil {
		return nil, err
	}

	cleaned, _, err := CleanMultiPolygon(reprojected)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllFeaturesRejected, err)
	}

	oriented := OrientMultiPolygon(cleaned)

	repaired := make(MultiPolygon, 0, len(oriented))
	for _, poly := range oriented {
		r, ok := RepairPolygon(poly)
		if !ok {
			return nil, ErrTopologyUnrepairable
		}
		repaired = append(repaired, r)
	}

	var warnings []string
	usedFallback := false

	simplified := SimplifyMultiPolygon(repaired, opts.SimplificationToleranceDeg)
	final := simplified
	for i, poly := range simplified {
		broken := SelfIntersects(poly.Exterior)
		for _, hole := range poly.Holes {
			if SelfIntersects(hole) {
				broken = true
				break
			}
		}
		if broken {
			// Simplification broke topology for this polygon (exterior or a
			// hole): back off to the pre-simplification (but still
			// repaired/oriented) geometry.
			final[i] = repaired[i]
			usedFallback = true
			warnings = append(warnings, fmt.Sprintf("polygon %d: simplification broke topology, reverted to repaired geometry", i))
		}
	}

	rounded := RoundMultiPolygon(final, opts.CoordinatePrecisionDigits)

	bbox, err := rounded.BoundingBox()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllFeaturesRejected, err)
	}

	return &Result{
		Geometry:     rounded,
		BBox:         bbox,
		Warnings:     warnings,
		UsedFallback: usedFallback,
	}, nil
}

// CanonicalBytes returns the canonical JSON encoding of a multipolygon:
// sorted object keys, stable ring/point order, fixed coordinate precision.
// This is the canonical_geometry_bytes the district identity builder (C6)
// and the snapshot packager (C9) hash.
func CanonicalBytes(mp MultiPolygon) ([]byte, error) {
	return commitment.MarshalCanonical(mp)
}

// Hash returns the SHA-256 hex hash of the canonical geometry bytes.
func Hash(mp MultiPolygon) (string, error) {
	b, err := CanonicalBytes(mp)
	if err != nil {
		return "", err
	}
	return commitment.HashBytes(b), nil
}
