// Copyright 2025 Certen Protocol
//
// Topology repair (C4.4): detect self-intersections in a ring and attempt a
// single canonical repair pass. If repair fails, the caller rejects the
// feature with a stable reason code — this package never silently emits
// invalid geometry.

package geometry

import "math"

// SelfIntersects reports whether any two non-adjacent edges of the ring
// cross. The ring is assumed closed (r[0] == r[len-1]).
func SelfIntersects(r Ring) bool {
	n := len(r) - 1 // number of edges
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 1; j < n; j++ {
			// Skip edges adjacent to edge i (share an endpoint).
			if j == i || j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := r[j], r[j+1]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}

	return false
}

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

func onSegment(a, b, p Point) bool {
	return math.Min(a.Lon, b.Lon) <= p.Lon && p.Lon <= math.Max(a.Lon, b.Lon) &&
		math.Min(a.Lat, b.Lat) <= p.Lat && p.Lat <= math.Max(a.Lat, b.Lat)
}

// RepairRing attempts one canonical repair pass over a self-intersecting
// ring: it removes the single vertex that participates in the most crossing
// edges, which resolves simple spike/bowtie self-intersections introduced by
// noisy source data or over-aggressive simplification. It never attempts a
// second pass — per spec.md §4.3 step 4, a feature that is still invalid
// after one repair attempt is rejected.
func RepairRing(r Ring) (Ring, bool) {
	if !SelfIntersects(r) {
		return r, true
	}

	n := len(r) - 1
	if n < 4 {
		return r, false
	}

	// Count crossings per vertex index (excluding the closing duplicate).
	crossCount := make([]int, n)
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[(i+1)%n]
		for j := 0; j < n; j++ {
			if j == i || j == (i+1)%n || (i+1)%n == j || absDiffMod(i, j, n) <= 1 {
				continue
			}
			b1, b2 := r[j], r[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				crossCount[i]++
				crossCount[j]++
			}
		}
	}

	worst := 0
	for i := 1; i < n; i++ {
		if crossCount[i] > crossCount[worst] {
			worst = i
		}
	}
	if crossCount[worst] == 0 {
		return r, false
	}

	repaired := make(Ring, 0, n)
	for i := 0; i < n; i++ {
		if i == worst {
			continue
		}
		repaired = append(repaired, r[i])
	}
	repaired = append(repaired, repaired[0])

	if len(repaired) < 4 || SelfIntersects(repaired) {
		return r, false
	}
	return repaired, true
}

func absDiffMod(i, j, n int) int {
	d := i - j
	if d < 0 {
		d = -d
	}
	if d > n-d {
		d = n - d
	}
	return d
}

// RepairPolygon repairs the exterior ring; a hole that cannot be repaired is
// dropped rather than failing the whole polygon, matching the cleaning
// policy in clean.go.
func RepairPolygon(p Polygon) (Polygon, bool) {
	ext, ok := RepairRing(p.Exterior)
	if !ok {
		return Polygon{}, false
	}

	holes := make([]Ring, 0, len(p.Holes))
	for _, h := range p.Holes {
		if repaired, ok := RepairRing(h); ok {
			holes = append(holes, repaired)
		}
	}

	return Polygon{Exterior: ext, Holes: holes}, true
}
