// Copyright 2025 Certen Protocol

package geometry

import "testing"

func sampleMultiPolygon() MultiPolygon {
	return MultiPolygon{
		{
			Exterior: Ring{
				{Lon: -155.6, Lat: 19.5},
				{Lon: -155.6, Lat: 19.6},
				{Lon: -155.4, Lat: 19.6},
				{Lon: -155.4, Lat: 19.5},
				{Lon: -155.6, Lat: 19.5},
			},
		},
	}
}

func TestNormalize_ProducesValidGeometry(t *testing.T) {
	res, err := Normalize(sampleMultiPolygon(), "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	for _, poly := range res.Geometry {
		if !IsCCW(poly.Exterior) {
			t.Error("normalized exterior ring is not CCW")
		}
		if SelfIntersects(poly.Exterior) {
			t.Error("normalized exterior ring self-intersects")
		}
	}
}

func TestNormalize_UnknownCRSRejected(t *testing.T) {
	_, err := Normalize(sampleMultiPolygon(), "EPSG:2154", DefaultOptions())
	if err == nil {
		t.Fatal("expected rejection for unsupported CRS")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	first, err := Normalize(sampleMultiPolygon(), "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("first normalize failed: %v", err)
	}

	second, err := Normalize(first.Geometry, "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("second normalize failed: %v", err)
	}

	b1, err := CanonicalBytes(first.Geometry)
	if err != nil {
		t.Fatalf("canonical bytes 1: %v", err)
	}
	b2, err := CanonicalBytes(second.Geometry)
	if err != nil {
		t.Fatalf("canonical bytes 2: %v", err)
	}

	if string(b1) != string(b2) {
		t.Error("normalizing already-normalized output was not idempotent")
	}
}

func TestNormalize_DeterministicAcrossRuns(t *testing.T) {
	res1, err := Normalize(sampleMultiPolygon(), "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	res2, err := Normalize(sampleMultiPolygon(), "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}

	h1, err := Hash(res1.Geometry)
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := Hash(res2.Geometry)
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}

	if h1 != h2 {
		t.Errorf("two normalize runs on identical input produced different hashes: %s != %s", h1, h2)
	}
}

func TestNormalize_BBoxMatchesGeometry(t *testing.T) {
	res, err := Normalize(sampleMultiPolygon(), "EPSG:4326", DefaultOptions())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	expected, err := res.Geometry.BoundingBox()
	if err != nil {
		t.Fatalf("bounding box: %v", err)
	}
	if res.BBox != expected {
		t.Errorf("result bbox %+v does not match geometry bbox %+v", res.BBox, expected)
	}
}
