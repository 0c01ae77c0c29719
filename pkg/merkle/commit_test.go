// Copyright 2025 Certen Protocol
//
// Two-level commitment tests

package merkle

import (
	"errors"
	"testing"
)

func TestTwoLevelCommitment_DeterministicAndVerifiable(t *testing.T) {
	usLeaves := map[string][]byte{
		"US-CA-001": leafHash("US-CA-001"),
		"US-CA-002": leafHash("US-CA-002"),
		"US-NY-001": leafHash("US-NY-001"),
	}
	frLeaves := map[string][]byte{
		"FR-75-001": leafHash("FR-75-001"),
		"FR-69-001": leafHash("FR-69-001"),
	}

	usCommit, err := BuildCountryCommit("US", usLeaves)
	if err != nil {
		t.Fatalf("build US commit: %v", err)
	}
	frCommit, err := BuildCountryCommit("FR", frLeaves)
	if err != nil {
		t.Fatalf("build FR commit: %v", err)
	}

	global, err := BuildGlobalCommit([]*CountryCommit{usCommit, frCommit})
	if err != nil {
		t.Fatalf("build global commit: %v", err)
	}

	// Order-independence: building from countries in reverse order yields the same root.
	globalReordered, err := BuildGlobalCommit([]*CountryCommit{frCommit, usCommit})
	if err != nil {
		t.Fatalf("build reordered global commit: %v", err)
	}
	if global.RootHex != globalReordered.RootHex {
		t.Fatalf("global root depends on input order: %s != %s", global.RootHex, globalReordered.RootHex)
	}

	leafToCountry, err := usCommit.ProofForDistrict("US-CA-002")
	if err != nil {
		t.Fatalf("proof for district: %v", err)
	}
	countryToGlobal, err := global.ProofForCountry("US")
	if err != nil {
		t.Fatalf("proof for country: %v", err)
	}

	proof := &DistrictProof{
		DistrictID:      "US-CA-002",
		CountryCode:     "US",
		LeafToCountry:   leafToCountry,
		CountryToGlobal: countryToGlobal,
		GlobalRoot:      global.RootHex,
	}

	ok, err := VerifyDistrictProof(usLeaves["US-CA-002"], proof)
	if err != nil {
		t.Fatalf("verify district proof: %v", err)
	}
	if !ok {
		t.Error("valid two-level proof did not verify")
	}

	// Tampering with the district leaf must fail verification.
	ok, err = VerifyDistrictProof(leafHash("tampered"), proof)
	if err != nil {
		t.Fatalf("verify tampered proof: %v", err)
	}
	if ok {
		t.Error("tampered leaf unexpectedly verified against two-level proof")
	}
}

func TestBuildCountryCommit_EmptyRejected(t *testing.T) {
	_, err := BuildCountryCommit("US", nil)
	if err == nil {
		t.Fatal("expected error building country commit from empty leaf set")
	}
}

func TestProofForDistrict_UnknownDistrict(t *testing.T) {
	commit, err := BuildCountryCommit("US", map[string][]byte{"US-CA-001": leafHash("US-CA-001")})
	if err != nil {
		t.Fatalf("build commit: %v", err)
	}
	_, err = commit.ProofForDistrict("US-CA-999")
	if !errors.Is(err, ErrLeafNotFound) {
		t.Errorf("expected ErrLeafNotFound, got %v", err)
	}
}
