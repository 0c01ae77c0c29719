// Copyright 2025 Certen Protocol
//
// Coordinate cleaning (C4.2): remove consecutive duplicate points and drop
// rings with fewer than 4 points (a closed ring needs at least 3 distinct
// vertices plus the closing repeat).

package geometry

import (
	"fmt"
	"math"
)

const coordEpsilon = 1e-9

// CleanRing removes consecutive duplicate points (within coordEpsilon) and
// reports an error if fewer than 4 points remain.
func CleanRing(r Ring) (Ring, error) {
	if len(r) == 0 {
		return nil, fmt.Errorf("geometry: empty ring")
	}

	out := make(Ring, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}

	// Ensure the ring is explicitly closed.
	if len(out) > 0 && !samePoint(out[0], out[len(out)-1]) {
		out = append(out, out[0])
	}

	if len(out) < 4 {
		return nil, fmt.Errorf("geometry: ring has %d points after cleaning, need >= 4", len(out))
	}

	return out, nil
}

func samePoint(a, b Point) bool {
	return math.Abs(a.Lon-b.Lon) < coordEpsilon && math.Abs(a.Lat-b.Lat) < coordEpsilon
}

// CleanPolygon cleans a polygon's exterior and all holes. A hole that fails
// cleaning is dropped (it is not part of the containment contract); an
// exterior that fails cleaning fails the whole polygon.
func CleanPolygon(p Polygon) (Polygon, error) {
	ext, err := CleanRing(p.Exterior)
	if err != nil {
		return Polygon{}, fmt.Errorf("exterior: %w", err)
	}

	holes := make([]Ring, 0, len(p.Holes))
	for _, h := range p.Holes {
		cleaned, err := CleanRing(h)
		if err != nil {
			continue
		}
		holes = append(holes, cleaned)
	}

	return Polygon{Exterior: ext, Holes: holes}, nil
}

// CleanMultiPolygon applies CleanPolygon to every member; a polygon that
// fails cleaning is dropped from the result, with the count of dropped
// polygons returned for provenance reporting.
func CleanMultiPolygon(mp MultiPolygon) (MultiPolygon, int, error) {
	out := make(MultiPolygon, 0, len(mp))
	dropped := 0
	for _, p := range mp {
		cleaned, err := CleanPolygon(p)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, cleaned)
	}
	if len(out) == 0 {
		return nil, dropped, fmt.Errorf("geometry: all polygons dropped during cleaning")
	}
	return out, dropped, nil
}
