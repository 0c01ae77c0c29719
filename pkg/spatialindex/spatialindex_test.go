// Copyright 2025 Certen Protocol

package spatialindex

import (
	"sort"
	"testing"

	"github.com/geomesh/boundary-commit/pkg/geometry"
)

// memStore is a minimal in-memory primaryStore for testing, standing in for
// the cometbft-db-backed kvdb adapter.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memStore) Set(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		if !fn([]byte(k), m.data[k]) {
			break
		}
	}
	return nil
}

func sampleEntries() []DistrictEntry {
	return []DistrictEntry{
		{
			DistrictID:   "bbbb",
			CountryCode:  "US",
			BBox:         geometry.BBox{MinLon: -160, MinLat: 20, MaxLon: -159, MaxLat: 21},
			GeometryHash: "hash-b",
		},
		{
			DistrictID:   "aaaa",
			CountryCode:  "US",
			BBox:         geometry.BBox{MinLon: -158, MinLat: 21, MaxLon: -157, MaxLat: 22},
			GeometryHash: "hash-a",
		},
		{
			DistrictID:   "cccc",
			CountryCode:  "US",
			BBox:         geometry.BBox{MinLon: -100, MinLat: 30, MaxLon: -99, MaxLat: 31},
			GeometryHash: "hash-c",
		},
	}
}

func TestCountryShard_BuildOrdersByDistrictID(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	if err := shard.Build(sampleEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	order := shard.Order()
	want := []string{"aaaa", "bbbb", "cccc"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestCountryShard_GetRoundTrips(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	if err := shard.Build(sampleEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	entry, err := shard.Get("aaaa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry for aaaa")
	}
	if entry.GeometryHash != "hash-a" {
		t.Errorf("unexpected geometry hash: %s", entry.GeometryHash)
	}
}

func TestCountryShard_GetMissingReturnsNil(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	if err := shard.Build(sampleEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	entry, err := shard.Get("zzzz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Error("expected nil entry for missing district")
	}
}

func TestCountryShard_CheckConsistencyAgrees(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	if err := shard.Build(sampleEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := shard.CheckConsistency(); err != nil {
		t.Errorf("expected primary table and tree to agree, got %v", err)
	}
}

func TestCountryShard_QueryFindsIntersecting(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	if err := shard.Build(sampleEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	results := shard.Query(geometry.BBox{MinLon: -161, MinLat: 19, MaxLon: -156, MaxLat: 23})
	if len(results) != 2 {
		t.Fatalf("expected 2 intersecting districts (aaaa, bbbb), got %d", len(results))
	}
}

func TestCountryShard_ContentHashDeterministic(t *testing.T) {
	shard := NewCountryShard("US", newMemStore())
	entries := sampleEntries()
	a := shard.ContentHash(entries)

	reversed := make([]DistrictEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	b := shard.ContentHash(reversed)

	if a != b {
		t.Error("expected content hash to be independent of input order")
	}
}
