// Copyright 2025 Certen Protocol

package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/geomesh/boundary-commit/pkg/geometry"
	"github.com/geomesh/boundary-commit/pkg/merkle"
	"github.com/geomesh/boundary-commit/pkg/provenance"
	"github.com/geomesh/boundary-commit/pkg/spatialindex"
)

// memStore is a minimal in-memory store satisfying the unexported
// primaryStore interface spatialindex.CountryShard expects, standing in for
// the cometbft-db-backed kvdb adapter in tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

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

func buildTestShard(t *testing.T) (*spatialindex.CountryShard, []spatialindex.DistrictEntry, *merkle.CountryCommit) {
	t.Helper()
	entries := []spatialindex.DistrictEntry{
		{DistrictID: "aaaa", CountryCode: "US", GeometryHash: "gh-a", MetadataHash: "mh-a", BBox: geometry.BBox{MinLon: -158, MinLat: 21, MaxLon: -157, MaxLat: 22}},
		{DistrictID: "bbbb", CountryCode: "US", GeometryHash: "gh-b", MetadataHash: "mh-b", BBox: geometry.BBox{MinLon: -160, MinLat: 20, MaxLon: -159, MaxLat: 21}},
	}

	shard := spatialindex.NewCountryShard("US", newMemStore())
	if err := shard.Build(entries); err != nil {
		t.Fatalf("build shard: %v", err)
	}

	leaves := map[string][]byte{
		"aaaa": merkle.HashData([]byte("aaaa" + "gh-a" + "mh-a")),
		"bbbb": merkle.HashData([]byte("bbbb" + "gh-b" + "mh-b")),
	}
	commit, err := merkle.BuildCountryCommit("US", leaves)
	if err != nil {
		t.Fatalf("build country commit: %v", err)
	}
	return shard, entries, commit
}

func TestPackCountry_ProducesDistinctContentAddresses(t *testing.T) {
	shard, entries, commit := buildTestShard(t)
	art, err := PackCountry(shard, entries, commit)
	if err != nil {
		t.Fatalf("pack country: %v", err)
	}

	cids := []string{art.DistrictsBinCID, art.IndexRTreeCID, art.MerkleBinCID, art.ProofsBinCID}
	seen := make(map[string]bool)
	for _, c := range cids {
		if c == "" {
			t.Fatal("expected non-empty cid")
		}
		if seen[c] {
			t.Errorf("expected distinct cids per artifact, got duplicate %s", c)
		}
		seen[c] = true
	}
}

func TestPackCountry_Deterministic(t *testing.T) {
	shard, entries, commit := buildTestShard(t)
	a, err := PackCountry(shard, entries, commit)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	b, err := PackCountry(shard, entries, commit)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if a.DistrictsBinCID != b.DistrictsBinCID {
		t.Error("expected repeated packing of identical input to produce identical CIDs")
	}
}

func TestBuildManifest_AndManifestCID(t *testing.T) {
	shard, entries, countryCommit := buildTestShard(t)
	art, err := PackCountry(shard, entries, countryCommit)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	global, err := merkle.BuildGlobalCommit([]*merkle.CountryCommit{countryCommit})
	if err != nil {
		t.Fatalf("build global commit: %v", err)
	}

	summary := provenance.NewSummary(nil)
	manifest := BuildManifest("v1", time.Unix(0, 0).UTC(), global, map[string]*CountryArtifacts{"US": art}, map[string]int{"US": len(entries)}, summary)

	if manifest.GlobalRoot != global.RootHex {
		t.Errorf("expected manifest global root to match commit, got %s vs %s", manifest.GlobalRoot, global.RootHex)
	}
	if manifest.PerCountry["US"].DistrictCount != 2 {
		t.Errorf("expected 2 districts recorded for US, got %d", manifest.PerCountry["US"].DistrictCount)
	}

	c, raw, err := ManifestCID(manifest)
	if err != nil {
		t.Fatalf("manifest cid: %v", err)
	}
	if c == "" || len(raw) == 0 {
		t.Fatal("expected non-empty manifest cid and bytes")
	}
}

func TestWriteAtomic_WritesFileAndCleansStaging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := WriteAtomic(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("write atomic: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected final file to exist: %v", err)
	}
	if _, err := os.Stat(path + ".staging"); !os.IsNotExist(err) {
		t.Error("expected staging file to be renamed away, not left behind")
	}
}

func TestDecompress_RoundTripsCompress(t *testing.T) {
	original := []byte(`{"hello":"world"}`)
	compressed := compress(original)
	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(restored) != string(original) {
		t.Errorf("expected round-tripped bytes to match, got %s", restored)
	}
}
