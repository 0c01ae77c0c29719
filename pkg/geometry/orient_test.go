// Copyright 2025 Certen Protocol

package geometry

import "testing"

func square(ccw bool) Ring {
	if ccw {
		return Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	}
	return Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
}

func TestIsCCW(t *testing.T) {
	if !IsCCW(square(true)) {
		t.Error("expected square(true) to be CCW")
	}
	if IsCCW(square(false)) {
		t.Error("expected square(false) to be CW")
	}
}

func TestOrientPolygon_ExteriorForcedCCW(t *testing.T) {
	p := Polygon{Exterior: square(false)}
	out := OrientPolygon(p)
	if !IsCCW(out.Exterior) {
		t.Error("exterior ring was not forced CCW")
	}
}

func TestOrientPolygon_HolesForcedCW(t *testing.T) {
	p := Polygon{
		Exterior: square(true),
		Holes:    []Ring{square(true)}, // deliberately CCW, should be flipped
	}
	out := OrientPolygon(p)
	if IsCCW(out.Holes[0]) {
		t.Error("hole ring was not forced CW")
	}
}

func TestOrientPolygon_AlreadyCorrectUnchanged(t *testing.T) {
	p := Polygon{Exterior: square(true), Holes: []Ring{square(false)}}
	out := OrientPolygon(p)
	if !IsCCW(out.Exterior) {
		t.Error("already-CCW exterior should remain CCW")
	}
	if IsCCW(out.Holes[0]) {
		t.Error("already-CW hole should remain CW")
	}
}

func TestOrientPolygon_Idempotent(t *testing.T) {
	p := Polygon{Exterior: square(false), Holes: []Ring{square(true)}}
	once := OrientPolygon(p)
	twice := OrientPolygon(once)
	if !pointsEqual(once.Exterior, twice.Exterior) {
		t.Error("orienting twice changed the exterior ring")
	}
}

func pointsEqual(a, b Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
