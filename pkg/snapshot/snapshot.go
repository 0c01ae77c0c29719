// Copyright 2025 Certen Protocol
//
// Snapshot Packager (C9): serializes each country shard's spatial index,
// Merkle leaves, batched proofs, and provenance report into the canonical
// artifact layout, compresses them, and content-addresses every artifact.
// Writes go to a staging path first and are atomically renamed into place,
// so a reader never observes a partially-written snapshot.

package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/geomesh/boundary-commit/pkg/cid"
	"github.com/geomesh/boundary-commit/pkg/merkle"
	"github.com/geomesh/boundary-commit/pkg/provenance"
	"github.com/geomesh/boundary-commit/pkg/spatialindex"
)

// CountryArtifacts holds the four per-country outbound files (spec.md §10)
// after compression and content-addressing.
type CountryArtifacts struct {
	CountryCode    string
	DistrictsBin   []byte // country/<CC>/districts.bin
	IndexRTree     []byte // country/<CC>/index.rtree
	MerkleBin      []byte // country/<CC>/merkle.bin
	ProofsBin      []byte // country/<CC>/proofs.bin
	DistrictsBinCID string
	IndexRTreeCID   string
	MerkleBinCID    string
	ProofsBinCID    string
}

// CountrySummary is the manifest's per-country entry.
type CountrySummary struct {
	CID           string `json:"cid"`
	DistrictCount int    `json:"district_count"`
	Bytes         int64  `json:"bytes"`
}

// Manifest is the top-level, content-addressed pointer clients resolve a
// snapshot version through.
type Manifest struct {
	Version           string                     `json:"version"`
	GlobalRoot        string                     `json:"global_root"`
	CreatedAt         time.Time                  `json:"created_at"`
	PerCountry        map[string]CountrySummary  `json:"per_country"`
	ProvenanceSummary provenance.Summary         `json:"provenance_summary"`
}

var zstdEncoder *zstd.Encoder

func init() {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("snapshot: init zstd encoder: %v", err))
	}
	zstdEncoder = enc
}

func compress(raw []byte) []byte {
	return zstdEncoder.EncodeAll(raw, nil)
}

// PackCountry serializes and compresses one country shard's artifacts and
// content-addresses each of them.
func PackCountry(shard *spatialindex.CountryShard, entries []spatialindex.DistrictEntry, commit *merkle.CountryCommit) (*CountryArtifacts, error) {
	districtsRaw, err := json.Marshal(sortedEntries(entries))
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal districts for %s: %w", shard.CountryCode, err)
	}
	indexRaw, err := marshalIndex(shard, entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal index for %s: %w", shard.CountryCode, err)
	}
	merkleRaw, err := json.Marshal(commit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal merkle commit for %s: %w", shard.CountryCode, err)
	}
	proofsRaw, err := marshalProofs(commit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal proofs for %s: %w", shard.CountryCode, err)
	}

	art := &CountryArtifacts{
		CountryCode:  shard.CountryCode,
		DistrictsBin: compress(districtsRaw),
		IndexRTree:   compress(indexRaw),
		MerkleBin:    compress(merkleRaw),
		ProofsBin:    compress(proofsRaw),
	}

	var cidErr error
	art.DistrictsBinCID, cidErr = cid.ComputeString(art.DistrictsBin)
	if cidErr != nil {
		return nil, fmt.Errorf("snapshot: cid districts.bin: %w", cidErr)
	}
	art.IndexRTreeCID, cidErr = cid.ComputeString(art.IndexRTree)
	if cidErr != nil {
		return nil, fmt.Errorf("snapshot: cid index.rtree: %w", cidErr)
	}
	art.MerkleBinCID, cidErr = cid.ComputeString(art.MerkleBin)
	if cidErr != nil {
		return nil, fmt.Errorf("snapshot: cid merkle.bin: %w", cidErr)
	}
	art.ProofsBinCID, cidErr = cid.ComputeString(art.ProofsBin)
	if cidErr != nil {
		return nil, fmt.Errorf("snapshot: cid proofs.bin: %w", cidErr)
	}

	return art, nil
}

func sortedEntries(entries []spatialindex.DistrictEntry) []spatialindex.DistrictEntry {
	out := make([]spatialindex.DistrictEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].DistrictID < out[j].DistrictID })
	return out
}

// indexFile is the on-disk shape of index.rtree: the bbox entries in
// commitment order, enough for a downstream reader to rebuild the in-memory
// tree without touching the primary table.
type indexFile struct {
	CountryCode string                         `json:"country_code"`
	Order       []string                       `json:"order"`
	Entries     []spatialindex.DistrictEntry   `json:"entries"`
}

func marshalIndex(shard *spatialindex.CountryShard, entries []spatialindex.DistrictEntry) ([]byte, error) {
	return json.Marshal(indexFile{
		CountryCode: shard.CountryCode,
		Order:       shard.Order(),
		Entries:     sortedEntries(entries),
	})
}

// proofsFile batches every district's inclusion proof against the country
// root, keyed by district_id.
type proofsFile struct {
	CountryRoot string                            `json:"country_root"`
	Proofs      map[string]*merkle.InclusionProof `json:"proofs"`
}

func marshalProofs(commit *merkle.CountryCommit) ([]byte, error) {
	proofs := make(map[string]*merkle.InclusionProof, len(commit.LeafOrder))
	for _, id := range commit.LeafOrder {
		p, err := commit.ProofForDistrict(id)
		if err != nil {
			return nil, fmt.Errorf("proof for %s: %w", id, err)
		}
		proofs[id] = p
	}
	return json.Marshal(proofsFile{CountryRoot: commit.RootHex, Proofs: proofs})
}

// BuildManifest assembles the top-level manifest from every country's
// packed artifacts and the global commitment over their roots.
func BuildManifest(version string, createdAt time.Time, global *merkle.GlobalCommit, perCountry map[string]*CountryArtifacts, countryDistrictCounts map[string]int, summary provenance.Summary) *Manifest {
	out := make(map[string]CountrySummary, len(perCountry))
	for cc, art := range perCountry {
		out[cc] = CountrySummary{
			CID:           art.DistrictsBinCID,
			DistrictCount: countryDistrictCounts[cc],
			Bytes:         int64(len(art.DistrictsBin) + len(art.IndexRTree) + len(art.MerkleBin) + len(art.ProofsBin)),
		}
	}
	return &Manifest{
		Version:           version,
		GlobalRoot:        global.RootHex,
		CreatedAt:         createdAt,
		PerCountry:        out,
		ProvenanceSummary: summary,
	}
}

// ManifestCID content-addresses the manifest itself: the single pointer
// clients need to resolve an entire snapshot (spec.md §10: "The manifest is
// itself content-addressed; the resulting CID is the single pointer clients
// need.").
func ManifestCID(m *Manifest) (string, []byte, error) {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("snapshot: marshal manifest: %w", err)
	}
	c, err := cid.ComputeString(raw)
	if err != nil {
		return "", nil, fmt.Errorf("snapshot: cid manifest: %w", err)
	}
	return c, raw, nil
}

// WriteAtomic writes data to path by first writing to a sibling staging
// file and renaming it into place, so a concurrent reader never observes a
// half-written artifact (spec.md §7: "write to a staging path and
// atomically rename to the final path").
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	staging := path + ".staging"
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write staging file %s: %w", staging, err)
	}
	if err := os.Rename(staging, path); err != nil {
		return fmt.Errorf("snapshot: rename %s to %s: %w", staging, path, err)
	}
	return nil
}

// WriteToDir writes one country's artifacts and the top-level manifest under
// root, following the country/<CC>/<artifact> layout spec.md §10 specifies.
// Every per-country artifact is written before the manifest: the manifest's
// CIDs point at those artifacts, so publishing the manifest first would let a
// crash between the two writes leave a reachable manifest referring to
// shards that don't exist yet (spec.md §5, §7: "a published snapshot is
// never partially published").
func WriteToDir(root string, manifestRaw []byte, perCountry map[string]*CountryArtifacts) error {
	for cc, art := range perCountry {
		base := filepath.Join(root, "country", cc)
		writes := []struct {
			name string
			data []byte
		}{
			{"districts.bin", art.DistrictsBin},
			{"index.rtree", art.IndexRTree},
			{"merkle.bin", art.MerkleBin},
			{"proofs.bin", art.ProofsBin},
		}
		for _, w := range writes {
			if err := WriteAtomic(filepath.Join(base, w.name), w.data); err != nil {
				return fmt.Errorf("snapshot: write %s/%s: %w", cc, w.name, err)
			}
		}
	}
	return WriteAtomic(filepath.Join(root, "manifest.json"), manifestRaw)
}

// Decompress reverses compress, for readers that need to inspect an
// artifact written by this package.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot: new zstd reader: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(nil, nil)
}
