// Copyright 2025 Certen Protocol
//
// Pipeline orchestrator: wires the per-dataset validate/normalize/identity
// stages (C2-C6) through to the per-country spatial index and Merkle build
// (C7/C8) and final snapshot packaging (C9). Datasets are processed by a
// bounded worker pool; within one dataset the stages are strictly
// sequential (spec.md §5). Country-level index/commit work runs in
// parallel once every dataset has been classified into its country shard;
// the global tree is a serial reduction over the country roots.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geomesh/boundary-commit/pkg/commitment"
	"github.com/geomesh/boundary-commit/pkg/eventstream"
	"github.com/geomesh/boundary-commit/pkg/geometry"
	"github.com/geomesh/boundary-commit/pkg/identity"
	"github.com/geomesh/boundary-commit/pkg/merkle"
	"github.com/geomesh/boundary-commit/pkg/provenance"
	"github.com/geomesh/boundary-commit/pkg/reference"
	"github.com/geomesh/boundary-commit/pkg/snapshot"
	"github.com/geomesh/boundary-commit/pkg/spatialindex"
	"github.com/geomesh/boundary-commit/pkg/taxonomy"
	"github.com/geomesh/boundary-commit/pkg/validate/count"
	"github.com/geomesh/boundary-commit/pkg/validate/geographic"
	"github.com/geomesh/boundary-commit/pkg/validate/semantic"
)

// RawFeature is one polygonal feature as handed off by the acquisition
// collaborator: a geometry plus the declared metadata the validators need.
type RawFeature struct {
	FeatureID        string
	LocalName        string
	LocalType        string
	JurisdictionID   string // e.g. "US-HI"
	CountryCode      string
	SubdivisionID    string // e.g. "US-HI", empty if not applicable
	MultiJuris       bool   // true if this feature legitimately spans multiple subdivisions
	JurisdictionPath []string
	Geometry         geometry.MultiPolygon
	DeclaredCRS      string
}

// RawDataset is one unit of acquisition: a title (for semantic scoring), a
// set of features, and the provenance record that covers all of them.
type RawDataset struct {
	DatasetID   string
	Title       string
	ExtraFields []string
	Features    []RawFeature
	Provenance  provenance.Record
}

// Config holds every tunable and shared reference table the pipeline needs.
// Defaults match spec.md §6's configuration table.
type Config struct {
	Tables            *reference.Tables
	Taxonomy          *taxonomy.Mapping
	NormalizeOpts     geometry.Options
	SemanticThreshold int
	GeoToleranceDeg   float64
	CountTolerance    int
	WorkerPoolSize    int
	Logger            *log.Logger

	// RunID identifies this run in the event stream. Events is nil by
	// default; conflict resolution and other stages simply skip publishing
	// when no stream is wired.
	RunID  string
	Events *eventstream.Stream
}

// DefaultConfig fills in spec.md defaults for every tunable except the
// reference tables and taxonomy, which callers must supply.
func DefaultConfig(tables *reference.Tables, taxo *taxonomy.Mapping) Config {
	return Config{
		Tables:            tables,
		Taxonomy:          taxo,
		NormalizeOpts:     geometry.DefaultOptions(),
		SemanticThreshold: semantic.DefaultThreshold,
		GeoToleranceDeg:   geographic.DefaultBBoxToleranceDeg,
		CountTolerance:    count.DefaultTolerance,
		WorkerPoolSize:    8,
		Logger:            log.New(log.Writer(), "[pipeline] ", log.LstdFlags),
	}
}

// acceptedDistrict carries a normalized district through from C6 to the
// per-country build stage. The provenance fields are carried per-district
// (copied from the owning dataset's Record) so cross-dataset conflict
// resolution in classify can compare candidates for the same jurisdiction
// without re-threading the dataset they came from.
type acceptedDistrict struct {
	entry        spatialindex.DistrictEntry
	leafHash     []byte
	geometryHash string

	authorityTier        provenance.AuthorityTier
	observationTimestamp time.Time
	provenanceHash       string
}

// ShardStore opens (or creates) the primary-table backing store for a
// country code. Kept as a function so callers choose the on-disk layout
// (one cometbft-db instance per country, typically).
type ShardStore func(countryCode string) (interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Iterate(start, end []byte, fn func(key, value []byte) bool) error
}, error)

// Report is the run's final outcome: the manifest, its CID, and the
// provenance summary, or a fatal error with its associated exit code.
// Artifacts and CountryCommits carry the full C7-C9 output so a caller can
// persist district rows and publish artifacts without re-parsing the
// compressed per-country blobs.
type Report struct {
	Manifest       *snapshot.Manifest
	ManifestCID    string
	Summary        provenance.Summary
	CountryCount   int
	DistrictCount  int
	Duration       time.Duration
	Artifacts      map[string]*snapshot.CountryArtifacts
	CountryCommits map[string]*merkle.CountryCommit
	Districts      map[string][]spatialindex.DistrictEntry
}

// ExitCode classifies a Run failure per spec.md §6.
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitValidationFatal    ExitCode = 1
	ExitNormalizationFatal ExitCode = 2
	ExitMerkleFatal        ExitCode = 3
)

// FatalError wraps a pipeline-halting error with its exit code.
type FatalError struct {
	Code ExitCode
	Err  error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Run processes every dataset through C2-C6, builds per-country C7/C8
// artifacts, and packages the result (C9) into version's manifest.
func Run(version string, datasets []RawDataset, cfg Config, shardStore ShardStore) (*Report, error) {
	start := time.Now()
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}

	outcomes, byCountry, err := classify(datasets, cfg)
	if err != nil {
		return nil, err
	}

	summary := provenance.NewSummary(outcomes)
	if len(byCountry) == 0 {
		return nil, &FatalError{Code: ExitValidationFatal, Err: fmt.Errorf("pipeline: no districts accepted across %d datasets", len(datasets))}
	}

	countryCommits, artifacts, districtCount, err := buildCountries(byCountry, shardStore, cfg)
	if err != nil {
		return nil, err
	}

	commits := make([]*merkle.CountryCommit, 0, len(countryCommits))
	for _, c := range countryCommits {
		commits = append(commits, c)
	}
	global, err := merkle.BuildGlobalCommit(commits)
	if err != nil {
		return nil, &FatalError{Code: ExitMerkleFatal, Err: fmt.Errorf("pipeline: global commit: %w", err)}
	}
	if err := global.SelfVerify(commits); err != nil {
		return nil, &FatalError{Code: ExitMerkleFatal, Err: fmt.Errorf("pipeline: global commit self-verify: %w", err)}
	}

	countryCounts := make(map[string]int, len(byCountry))
	for cc, districts := range byCountry {
		countryCounts[cc] = len(districts)
	}

	manifest := snapshot.BuildManifest(version, time.Now().UTC(), global, artifacts, countryCounts, summary)
	manifestCID, _, err := snapshot.ManifestCID(manifest)
	if err != nil {
		return nil, &FatalError{Code: ExitMerkleFatal, Err: fmt.Errorf("pipeline: manifest CID: %w", err)}
	}

	districts := make(map[string][]spatialindex.DistrictEntry, len(byCountry))
	for cc, accepted := range byCountry {
		entries := make([]spatialindex.DistrictEntry, len(accepted))
		for i, d := range accepted {
			entries[i] = d.entry
		}
		districts[cc] = entries
	}

	return &Report{
		Manifest:       manifest,
		ManifestCID:    manifestCID,
		Summary:        summary,
		CountryCount:   len(byCountry),
		DistrictCount:  districtCount,
		Duration:       time.Since(start),
		Artifacts:      artifacts,
		CountryCommits: countryCommits,
		Districts:      districts,
	}, nil
}

// classify runs C2-C6 over every dataset with a bounded worker pool and
// groups accepted districts by country code.
func classify(datasets []RawDataset, cfg Config) ([]provenance.Outcome, map[string][]acceptedDistrict, error) {
	type datasetResult struct {
		outcomes  []provenance.Outcome
		districts []acceptedDistrict
	}

	jobs := make(chan RawDataset)
	results := make(chan datasetResult, len(datasets))

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerPoolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ds := range jobs {
				outcomes, districts := processDataset(ds, cfg)
				results <- datasetResult{outcomes: outcomes, districts: districts}
			}
		}()
	}
	go func() {
		for _, ds := range datasets {
			jobs <- ds
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var allOutcomes []provenance.Outcome
	byCountry := make(map[string][]acceptedDistrict)
	collisions := make(map[string]*identity.CollisionDetector)

	for r := range results {
		allOutcomes = append(allOutcomes, r.outcomes...)
		for _, d := range r.districts {
			cc := d.entry.CountryCode
			det, ok := collisions[cc]
			if !ok {
				det = identity.NewCollisionDetector(0)
				collisions[cc] = det
			}
			if err := det.Check(d.entry.DistrictID, len(byCountry[cc])); err != nil {
				return nil, nil, &FatalError{Code: ExitValidationFatal, Err: fmt.Errorf("pipeline: %w", err)}
			}
			byCountry[cc] = append(byCountry[cc], d)
		}
	}

	allOutcomes = append(allOutcomes, resolveConflicts(byCountry, cfg)...)

	return allOutcomes, byCountry, nil
}

// resolveConflicts implements spec.md §9's multi-source federation policy:
// two datasets describing the same jurisdiction derive different district
// IDs (the identity hash folds in each dataset's own canonical geometry), so
// the collision detector above never sees them as the same district. Here
// every accepted district in a country is grouped by its jurisdiction path,
// and any group with more than one member is resolved down to a single
// winner by authority tier (lower wins), then by observation recency (newer
// wins), then by a lexicographic provenance-hash tiebreak so the outcome is
// deterministic even when two sources are equally authoritative and equally
// fresh.
func resolveConflicts(byCountry map[string][]acceptedDistrict, cfg Config) []provenance.Outcome {
	var outcomes []provenance.Outcome

	for cc, districts := range byCountry {
		groups := make(map[string][]int)
		for i, d := range districts {
			key := strings.Join(d.entry.JurisdictionPath, "/")
			groups[key] = append(groups[key], i)
		}

		drop := make(map[int]bool)
		for key, idxs := range groups {
			if len(idxs) < 2 {
				continue
			}
			winner := idxs[0]
			for _, idx := range idxs[1:] {
				winner = conflictWinner(districts, winner, idx)
			}
			for _, idx := range idxs {
				if idx == winner {
					continue
				}
				drop[idx] = true
				loser, win := districts[idx], districts[winner]
				outcomes = append(outcomes, provenance.Outcome{
					Stage: "conflict", FeatureID: loser.entry.DistrictID, Accepted: false,
					Code:   provenance.RejectionLowerAuthoritySuperseded,
					Detail: fmt.Sprintf("country=%s jurisdiction=%s superseded_by=%s", cc, key, win.entry.DistrictID),
				})
				if cfg.Events != nil {
					cfg.Events.Publish(context.Background(), cfg.RunID, eventstream.StageConflict, eventstream.StatusCompleted, map[string]interface{}{
						"country":      cc,
						"jurisdiction": key,
						"winner":       win.entry.DistrictID,
						"loser":        loser.entry.DistrictID,
					})
				}
			}
		}

		if len(drop) == 0 {
			continue
		}
		kept := make([]acceptedDistrict, 0, len(districts)-len(drop))
		for i, d := range districts {
			if !drop[i] {
				kept = append(kept, d)
			}
		}
		byCountry[cc] = kept
	}

	return outcomes
}

// conflictWinner applies the authority tier -> timestamp -> hash tiebreak
// chain between two same-jurisdiction candidates and returns the index of
// the winner.
func conflictWinner(districts []acceptedDistrict, a, b int) int {
	da, db := districts[a], districts[b]

	if da.authorityTier != db.authorityTier {
		if da.authorityTier < db.authorityTier {
			return a
		}
		return b
	}
	if !da.observationTimestamp.Equal(db.observationTimestamp) {
		if da.observationTimestamp.After(db.observationTimestamp) {
			return a
		}
		return b
	}
	if da.provenanceHash <= db.provenanceHash {
		return a
	}
	return b
}

// candidateDistrict is a feature that cleared C2-C6 but whose quality tier
// (derived from C3-C5 signals) is not yet known, since the count check (C5) only has a
// jurisdiction's total once every feature in the dataset has been walked.
type candidateDistrict struct {
	feature              RawFeature
	entry                spatialindex.DistrictEntry
	leafHash             []byte
	geometryHash         string
	isUtilityType        bool
	usedTopologyFallback bool
}

// processDataset runs the strictly sequential C2 -> C3 -> C4 -> C5 -> C6
// chain over one dataset's features, then a second pass to derive each
// candidate's quality tier now that C5's per-jurisdiction count warnings are
// known, gating UTILITY/REJECT tier districts out before they ever reach a
// country shard.
func processDataset(ds RawDataset, cfg Config) ([]provenance.Outcome, []acceptedDistrict) {
	var outcomes []provenance.Outcome

	score := semantic.Score(ds.Title, ds.ExtraFields, cfg.SemanticThreshold)
	if !score.Accept {
		outcomes = append(outcomes, provenance.Outcome{
			Stage: "semantic", DatasetID: ds.DatasetID, Accepted: false,
			Code: provenance.RejectionBelowSemanticThreshold, Detail: fmt.Sprintf("score=%d reasons=%v", score.Score, score.Reasons),
		})
		return outcomes, nil
	}
	outcomes = append(outcomes, provenance.Outcome{Stage: "semantic", DatasetID: ds.DatasetID, Accepted: true})

	// The cross-jurisdiction check (C3) compares a claim's bbox against the
	// union of every feature this dataset declares, not one feature at a
	// time, so it can catch a dataset that mixes features from unrelated
	// jurisdictions even when each feature looks fine in isolation. A
	// feature whose own bbox doesn't even fall inside its declared
	// country's bbox is excluded from the union: it is already a country-
	// level rejection on its own and shouldn't inflate the contamination
	// signal for its dataset-mates.
	var datasetBBox geometry.BBox
	haveBBox := false
	for _, f := range ds.Features {
		bbox, err := f.Geometry.BoundingBox()
		if err != nil {
			continue
		}
		if countryBBox, ok := cfg.Tables.CountryBBox(f.CountryCode); ok && !countryBBox.ContainsBBox(bbox, cfg.GeoToleranceDeg) {
			continue
		}
		if !haveBBox {
			datasetBBox = bbox
			haveBBox = true
			continue
		}
		datasetBBox = datasetBBox.Union(bbox)
	}

	var candidates []candidateDistrict
	featureCounts := make(map[string]int)

	for _, f := range ds.Features {
		geo := geographic.Validate(f.Geometry, f.CountryCode, f.SubdivisionID, cfg.Tables, cfg.GeoToleranceDeg, datasetBBox)
		if !geo.Valid {
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "geographic", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: false,
				Code: firstOr(geo.Reasons, provenance.RejectionOutsideJurisdictionBBox), Detail: fmt.Sprintf("confidence=%d", geo.Confidence),
			})
			continue
		}
		outcomes = append(outcomes, provenance.Outcome{Stage: "geographic", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: true})

		normResult, err := geometry.Normalize(f.Geometry, f.DeclaredCRS, cfg.NormalizeOpts)
		if err != nil {
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "geometry", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: false,
				Code: classifyNormalizeError(err), Detail: err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, provenance.Outcome{Stage: "geometry", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: true, Warning: normResult.UsedFallback})

		universal, err := cfg.Taxonomy.Resolve(f.CountryCode, f.LocalType)
		if err != nil {
			universal = taxonomy.Other
		}

		canonicalGeom, err := geometry.CanonicalBytes(normResult.Geometry)
		if err != nil {
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "identity", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: false,
				Code: provenance.RejectionAllFeaturesRejected, Detail: err.Error(),
			})
			continue
		}

		districtID, err := identity.DeriveHex(identity.Input{
			JurisdictionPath:  f.JurisdictionPath,
			LocalName:         f.LocalName,
			CanonicalGeometry: canonicalGeom,
		})
		if err != nil {
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "identity", DatasetID: ds.DatasetID, FeatureID: f.FeatureID, Accepted: false,
				Code: provenance.RejectionHashCollision, Detail: err.Error(),
			})
			continue
		}

		geometryHash := commitment.HashBytes(canonicalGeom)
		metaHash := identityMetadataHash(f, universal)

		leaf := merkle.HashData(append(append([]byte(districtID), []byte(geometryHash)...), []byte(metaHash)...))

		candidates = append(candidates, candidateDistrict{
			feature: f,
			entry: spatialindex.DistrictEntry{
				DistrictID:        districtID,
				CountryCode:       f.CountryCode,
				UniversalType:     string(universal),
				JurisdictionPath:  f.JurisdictionPath,
				LocalName:         f.LocalName,
				CanonicalName:     f.LocalName,
				BBox:              normResult.BBox,
				GeometryHash:      geometryHash,
				MetadataHash:      metaHash,
				CanonicalGeometry: canonicalGeom,
			},
			leafHash:             leaf,
			geometryHash:         geometryHash,
			isUtilityType:        universal == taxonomy.Other,
			usedTopologyFallback: normResult.UsedFallback,
		})
		featureCounts[f.JurisdictionID]++
	}

	countWarning := make(map[string]bool, len(featureCounts))
	for jid, n := range featureCounts {
		r := count.Check(jid, n, cfg.Tables.ExpectedCount, cfg.CountTolerance)
		if r.Warning {
			countWarning[jid] = true
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "count", DatasetID: ds.DatasetID, Accepted: true, Warning: true,
				Detail: fmt.Sprintf("jurisdiction=%s actual=%d expected=%d", jid, r.ActualCount, r.ExpectedCount),
			})
		}
	}

	accepted := make([]acceptedDistrict, 0, len(candidates))
	for _, c := range candidates {
		tier := provenance.DeriveQualityTier(c.isUtilityType, c.usedTopologyFallback, c.feature.SubdivisionID != "", countWarning[c.feature.JurisdictionID])
		if tier == provenance.QualityUtility || tier == provenance.QualityReject {
			code := provenance.RejectionUtilityTierExcluded
			if tier == provenance.QualityReject {
				code = provenance.RejectionQualityTierReject
			}
			outcomes = append(outcomes, provenance.Outcome{
				Stage: "quality_tier", DatasetID: ds.DatasetID, FeatureID: c.feature.FeatureID, Accepted: false,
				Code: code, Detail: fmt.Sprintf("tier=%s", tier),
			})
			continue
		}

		entry := c.entry
		entry.QualityTier = string(tier)
		accepted = append(accepted, acceptedDistrict{
			entry:                entry,
			leafHash:             c.leafHash,
			geometryHash:         c.geometryHash,
			authorityTier:        ds.Provenance.AuthorityTier,
			observationTimestamp: ds.Provenance.ObservationTimestamp,
			provenanceHash:       ds.Provenance.ResponseHash,
		})
	}

	return outcomes, accepted
}

func firstOr(reasons []provenance.RejectionCode, fallback provenance.RejectionCode) provenance.RejectionCode {
	if len(reasons) > 0 {
		return reasons[0]
	}
	return fallback
}

func classifyNormalizeError(err error) provenance.RejectionCode {
	switch {
	case errors.Is(err, geometry.ErrUnknownCRS):
		return provenance.RejectionUnknownCRS
	case errors.Is(err, geometry.ErrTopologyUnrepairable):
		return provenance.RejectionTopologyUnrepairable
	default:
		return provenance.RejectionAllFeaturesRejected
	}
}

func identityMetadataHash(f RawFeature, universal taxonomy.UniversalType) string {
	return merkle.HashDataHex([]byte(f.LocalType + "|" + string(universal) + "|" + f.JurisdictionID))
}

// buildCountries runs C7 (spatial index) and C8 (Merkle commit) for every
// country shard concurrently, then packages each into C9 artifacts.
func buildCountries(byCountry map[string][]acceptedDistrict, shardStore ShardStore, cfg Config) (map[string]*merkle.CountryCommit, map[string]*snapshot.CountryArtifacts, int, error) {
	type countryResult struct {
		cc        string
		commit    *merkle.CountryCommit
		artifacts *snapshot.CountryArtifacts
		count     int
		err       error
	}

	codes := make([]string, 0, len(byCountry))
	for cc := range byCountry {
		codes = append(codes, cc)
	}
	sort.Strings(codes)

	resultsCh := make(chan countryResult, len(codes))
	var wg sync.WaitGroup
	for _, cc := range codes {
		wg.Add(1)
		go func(cc string) {
			defer wg.Done()
			commit, artifacts, err := buildOneCountry(cc, byCountry[cc], shardStore)
			resultsCh <- countryResult{cc: cc, commit: commit, artifacts: artifacts, count: len(byCountry[cc]), err: err}
		}(cc)
	}
	wg.Wait()
	close(resultsCh)

	commits := make(map[string]*merkle.CountryCommit, len(codes))
	artifacts := make(map[string]*snapshot.CountryArtifacts, len(codes))
	total := 0
	for r := range resultsCh {
		if r.err != nil {
			return nil, nil, 0, &FatalError{Code: ExitMerkleFatal, Err: fmt.Errorf("pipeline: country %s: %w", r.cc, r.err)}
		}
		commits[r.cc] = r.commit
		artifacts[r.cc] = r.artifacts
		total += r.count
	}
	return commits, artifacts, total, nil
}

func buildOneCountry(cc string, districts []acceptedDistrict, shardStore ShardStore) (*merkle.CountryCommit, *snapshot.CountryArtifacts, error) {
	store, err := shardStore(cc)
	if err != nil {
		return nil, nil, fmt.Errorf("open shard store: %w", err)
	}

	entries := make([]spatialindex.DistrictEntry, len(districts))
	leaves := make(map[string][]byte, len(districts))
	for i, d := range districts {
		entries[i] = d.entry
		leaves[d.entry.DistrictID] = d.leafHash
	}

	shard := spatialindex.NewCountryShard(cc, store)
	if err := shard.Build(entries); err != nil {
		return nil, nil, fmt.Errorf("build spatial index: %w", err)
	}
	if err := shard.CheckConsistency(); err != nil {
		return nil, nil, fmt.Errorf("spatial index consistency: %w", err)
	}

	commit, err := merkle.BuildCountryCommit(cc, leaves)
	if err != nil {
		return nil, nil, fmt.Errorf("build country commit: %w", err)
	}
	if err := commit.SelfVerify(leaves); err != nil {
		return nil, nil, fmt.Errorf("country commit self-verify: %w", err)
	}

	artifacts, err := snapshot.PackCountry(shard, entries, commit)
	if err != nil {
		return nil, nil, fmt.Errorf("pack country artifacts: %w", err)
	}

	return commit, artifacts, nil
}
