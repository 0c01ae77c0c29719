// Copyright 2025 Certen Protocol

package geometry

import (
	"math"
	"testing"
)

func TestRoundBankers_RoundHalfToEven(t *testing.T) {
	cases := []struct {
		in   float64
		n    int
		want float64
	}{
		{0.125, 2, 0.12}, // halfway, 12 is even
		{0.135, 2, 0.14}, // halfway, 14 is even (13 is odd)
		{2.5, 0, 2},
		{3.5, 0, 4},
		{1.2345675, 6, 1.234568}, // not exactly halfway in binary float, standard round
	}

	for _, c := range cases {
		got := RoundBankers(c.in, c.n)
		if got != c.want {
			t.Errorf("RoundBankers(%v, %d) = %v, want %v", c.in, c.n, got, c.want)
		}
	}
}

func TestRoundBankers_Deterministic(t *testing.T) {
	v := 45.123456789
	a := RoundBankers(v, 6)
	b := RoundBankers(v, 6)
	if a != b {
		t.Errorf("rounding was not deterministic: %v != %v", a, b)
	}
}

func TestRoundBankers_Idempotent(t *testing.T) {
	v := 45.1234565
	once := RoundBankers(v, 6)
	twice := RoundBankers(once, 6)
	if once != twice {
		t.Errorf("rounding twice changed the value: %v != %v", once, twice)
	}
}

func TestRoundPolygon_SixDigitsMax(t *testing.T) {
	p := Polygon{Exterior: Ring{
		{Lon: 1.1234567891, Lat: 2.9876543219},
		{Lon: 2, Lat: 2},
		{Lon: 2, Lat: 1},
		{Lon: 1.1234567891, Lat: 2.9876543219},
	}}
	out := RoundPolygon(p, DefaultCoordinatePrecisionDigits)
	for _, pt := range out.Exterior {
		if !hasAtMostNDigits(pt.Lon, 6) || !hasAtMostNDigits(pt.Lat, 6) {
			t.Errorf("point %v has more than 6 decimal digits", pt)
		}
	}
}

func hasAtMostNDigits(v float64, n int) bool {
	scale := math.Pow10(n)
	scaled := v * scale
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
