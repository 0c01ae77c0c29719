// Copyright 2025 Certen Protocol

package geometry

import "testing"

func TestSelfIntersects_SimpleSquareFalse(t *testing.T) {
	r := square(true)
	if SelfIntersects(r) {
		t.Error("simple square incorrectly reported as self-intersecting")
	}
}

func TestSelfIntersects_BowtieTrue(t *testing.T) {
	// A classic bowtie/figure-eight: edges cross in the middle.
	bowtie := Ring{
		{Lon: 0, Lat: 0},
		{Lon: 1, Lat: 1},
		{Lon: 1, Lat: 0},
		{Lon: 0, Lat: 1},
		{Lon: 0, Lat: 0},
	}
	if !SelfIntersects(bowtie) {
		t.Error("bowtie ring was not detected as self-intersecting")
	}
}

func TestRepairRing_ValidRingUnchanged(t *testing.T) {
	r := square(true)
	repaired, ok := RepairRing(r)
	if !ok {
		t.Fatal("expected repair to succeed (no-op) on a valid ring")
	}
	if !pointsEqual(r, repaired) {
		t.Error("valid ring was modified by RepairRing")
	}
}

func TestRepairRing_BowtieRepairedOrRejected(t *testing.T) {
	bowtie := Ring{
		{Lon: 0, Lat: 0},
		{Lon: 1, Lat: 1},
		{Lon: 1, Lat: 0},
		{Lon: 0, Lat: 1},
		{Lon: 0, Lat: 0},
	}
	repaired, ok := RepairRing(bowtie)
	if ok && SelfIntersects(repaired) {
		t.Error("RepairRing reported success but the result still self-intersects")
	}
}
