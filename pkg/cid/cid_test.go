// Copyright 2025 Certen Protocol

package cid

import "testing"

func TestCompute_Deterministic(t *testing.T) {
	data := []byte("district shard payload")
	a, err := ComputeString(data)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, err := ComputeString(data)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if a != b {
		t.Error("expected identical bytes to produce identical CIDs")
	}
}

func TestCompute_DifferentBytesDifferentCID(t *testing.T) {
	a, err := ComputeString([]byte("payload one"))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, err := ComputeString([]byte("payload two"))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if a == b {
		t.Error("expected different bytes to produce different CIDs")
	}
}

func TestVerify_MatchesAndMismatches(t *testing.T) {
	data := []byte("manifest bytes")
	c, err := ComputeString(data)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	ok, err := Verify(data, c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected verify to succeed against matching data")
	}

	ok, err = Verify([]byte("tampered bytes"), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("expected verify to fail against tampered data")
	}
}
