// Copyright 2025 Certen Protocol

package identity

import "testing"

func TestDerive_LengthAndDeterminism(t *testing.T) {
	in := Input{
		JurisdictionPath:  []string{"US", "HI", "Honolulu"},
		LocalName:         "  Council District 1  ",
		CanonicalGeometry: []byte(`{"type":"multipolygon"}`),
	}
	a, err := Derive(in)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(a) != IDLength {
		t.Fatalf("expected %d byte id, got %d", IDLength, len(a))
	}

	b, err := Derive(in)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(a) != string(b) {
		t.Error("expected identical input to derive identical district_id")
	}
}

func TestDerive_NameNormalizationIgnoresCaseAndWhitespace(t *testing.T) {
	base := Input{
		JurisdictionPath:  []string{"US", "HI", "Honolulu"},
		LocalName:         "Council District 1",
		CanonicalGeometry: []byte(`{"type":"multipolygon"}`),
	}
	padded := base
	padded.LocalName = "  COUNCIL DISTRICT 1 "

	a, err := Derive(base)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(padded)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(a) != string(b) {
		t.Error("expected name normalization to ignore case and surrounding whitespace")
	}
}

func TestDerive_DifferentGeometryDifferentID(t *testing.T) {
	base := Input{
		JurisdictionPath:  []string{"US", "HI", "Honolulu"},
		LocalName:         "Council District 1",
		CanonicalGeometry: []byte(`{"type":"multipolygon","a":1}`),
	}
	other := base
	other.CanonicalGeometry = []byte(`{"type":"multipolygon","a":2}`)

	a, err := Derive(base)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(other)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(a) == string(b) {
		t.Error("expected distinct geometry to yield distinct district_id")
	}
}

func TestCollisionDetector_NoCollision(t *testing.T) {
	d := NewCollisionDetector(4)
	if err := d.Check("aaaa", 0); err != nil {
		t.Fatalf("unexpected collision: %v", err)
	}
	if err := d.Check("bbbb", 1); err != nil {
		t.Fatalf("unexpected collision: %v", err)
	}
	if d.Count() != 2 {
		t.Errorf("expected count 2, got %d", d.Count())
	}
}

func TestCollisionDetector_DetectsCollision(t *testing.T) {
	d := NewCollisionDetector(4)
	if err := d.Check("aaaa", 0); err != nil {
		t.Fatalf("unexpected collision: %v", err)
	}
	err := d.Check("aaaa", 5)
	if err == nil {
		t.Fatal("expected collision error on duplicate district_id")
	}
	collErr, ok := err.(*CollisionError)
	if !ok {
		t.Fatalf("expected *CollisionError, got %T", err)
	}
	if collErr.FirstIndex != 0 || collErr.SecondIndex != 5 {
		t.Errorf("unexpected collision indices: %+v", collErr)
	}
}
