// Copyright 2025 Certen Protocol
//
// Ring orientation (C4.3): force exterior rings counter-clockwise and
// interior rings clockwise, by the right-hand rule (shoelace formula sign).

package geometry

// ringArea returns the signed area of the ring via the shoelace
// formula. Positive means counter-clockwise, negative means clockwise.
// Assumes r is closed (r[0] == r[len-1]).
func ringArea(r Ring) float64 {
	var sum float64
	n := len(r)
	for i := 0; i < n-1; i++ {
		sum += (r[i+1].Lon - r[i].Lon) * (r[i+1].Lat + r[i].Lat)
	}
	// Shoelace via the standard cross-product form yields a cleaner sign
	// convention; the above is the trapezoid form (negated relative to the
	// textbook cross-product shoelace), so flip sign to match the
	// conventional CCW-positive definition.
	return -sum / 2
}

// IsCCW reports whether the ring winds counter-clockwise.
func IsCCW(r Ring) bool {
	return ringArea(r) > 0
}

// reverseRing returns a new ring with point order reversed (closing point
// stays first/last correctly since reversing preserves r[0]==r[len-1]).
func reverseRing(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// OrientPolygon forces the exterior ring CCW and every hole CW.
func OrientPolygon(p Polygon) Polygon {
	ext := p.Exterior
	if !IsCCW(ext) {
		ext = reverseRing(ext)
	}

	holes := make([]Ring, len(p.Holes))
	for i, h := range p.Holes {
		if IsCCW(h) {
			holes[i] = reverseRing(h)
		} else {
			holes[i] = h
		}
	}

	return Polygon{Exterior: ext, Holes: holes}
}

// OrientMultiPolygon applies OrientPolygon to every member, preserving order.
func OrientMultiPolygon(mp MultiPolygon) MultiPolygon {
	out := make(MultiPolygon, len(mp))
	for i, p := range mp {
		out[i] = OrientPolygon(p)
	}
	return out
}
