// Copyright 2025 Certen Protocol

package reference

import "testing"

func TestLoadDefault(t *testing.T) {
	tables, err := LoadDefault()
	if err != nil {
		t.Fatalf("load default tables: %v", err)
	}

	bbox, ok := tables.CountryBBox("US")
	if !ok {
		t.Fatal("expected US country bbox to be present")
	}
	if bbox.MinLon >= bbox.MaxLon || bbox.MinLat >= bbox.MaxLat {
		t.Errorf("US bbox is degenerate: %+v", bbox)
	}

	sub, ok := tables.SubdivisionBBox("US-HI")
	if !ok {
		t.Fatal("expected US-HI subdivision bbox to be present")
	}
	if sub.MultiSubdivision {
		t.Error("US-HI should not be marked multi-subdivision")
	}

	count, ok := tables.ExpectedCount("US-HI-honolulu")
	if !ok || count != 9 {
		t.Errorf("expected honolulu count 9, got %d (ok=%v)", count, ok)
	}
}

func TestExpectedCount_UnknownJurisdiction(t *testing.T) {
	tables, err := LoadDefault()
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	_, ok := tables.ExpectedCount("XX-nowhere")
	if ok {
		t.Error("expected unknown jurisdiction to report not-found")
	}
}
