// Copyright 2025 Certen Protocol
//
// cmd/pipeline is the offline batch entrypoint: it ingests already-acquired
// raw feature collections from a local directory, runs them through C1-C9,
// persists the result, and - if pinning providers are configured -
// replicates (C10) and stages the new snapshot into the active pointer via
// a staged rollout (C11). Acquisition of the raw datasets themselves
// happens upstream of this process; this binary only consumes what has
// already landed on disk with its provenance record attached.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"

	"github.com/geomesh/boundary-commit/pkg/config"
	"github.com/geomesh/boundary-commit/pkg/database"
	"github.com/geomesh/boundary-commit/pkg/eventstream"
	"github.com/geomesh/boundary-commit/pkg/kvdb"
	"github.com/geomesh/boundary-commit/pkg/pipeline"
	"github.com/geomesh/boundary-commit/pkg/reference"
	"github.com/geomesh/boundary-commit/pkg/rollout"
	"github.com/geomesh/boundary-commit/pkg/snapshot"
	"github.com/geomesh/boundary-commit/pkg/taxonomy"
)

// Exit codes beyond pipeline.ExitCode's C1-C9 range: a successful commit
// whose replication or rollout did not land cleanly still needs a non-zero
// status so operators and CI notice.
const (
	exitReplicationQuorumFailed = 4
	exitRolledBack              = 5
	exitAborted                 = 6
)

func main() {
	inputDir := flag.String("input-dir", getenvDefault("INPUT_DIR", "./data/input"), "directory of dataset JSON files")
	shardDir := flag.String("shard-dir", getenvDefault("SHARD_DATA_DIR", "./data/shards"), "directory for per-country primary-table shards")
	outputDir := flag.String("output-dir", getenvDefault("OUTPUT_DIR", "./data/snapshots"), "directory to write the manifest and per-country artifacts to")
	version := flag.String("version", getenvDefault("PIPELINE_VERSION", defaultVersion()), "version label for this run's manifest")
	flag.Parse()

	logger := log.New(os.Stdout, "[pipeline] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	tables, err := loadReferenceTables(cfg)
	if err != nil {
		logger.Fatalf("load reference tables: %v", err)
	}
	taxo, err := loadTaxonomy(cfg)
	if err != nil {
		logger.Fatalf("load taxonomy: %v", err)
	}

	datasets, err := loadDatasets(*inputDir, logger)
	if err != nil {
		logger.Fatalf("load datasets from %s: %v", *inputDir, err)
	}
	if len(datasets) == 0 {
		logger.Fatalf("no usable datasets found in %s", *inputDir)
	}

	pcfg := pipeline.DefaultConfig(tables, taxo)
	pcfg.NormalizeOpts.SimplificationToleranceDeg = cfg.SimplificationToleranceDeg
	pcfg.NormalizeOpts.CoordinatePrecisionDigits = cfg.CoordinatePrecisionDigits
	pcfg.CountTolerance = cfg.CountValidatorTolerance
	pcfg.Logger = logger

	shardStore := leveldbShardStore(*shardDir)

	var repos *database.Repositories
	if cfg.DatabaseURL != "" {
		dbClient, err := database.NewClient(cfg)
		if err != nil {
			logger.Fatalf("connect to database: %v", err)
		}
		defer dbClient.Close()
		repos = database.NewRepositories(dbClient)
	}

	ctx := context.Background()
	stream := eventstream.New(nil, logger)

	var runID uuid.UUID
	runLabel := *version
	if repos != nil {
		id, err := repos.Runs.CreateRun(ctx, database.NewRun{Version: *version})
		if err != nil {
			logger.Fatalf("create run record: %v", err)
		}
		runID = id
		runLabel = id.String()
	}

	stream.Publish(ctx, runLabel, eventstream.StageIngest, eventstream.StatusStarted, map[string]interface{}{"dataset_count": len(datasets)})

	report, runErr := pipeline.Run(*version, datasets, pcfg, shardStore)
	if runErr != nil {
		stream.Publish(ctx, runLabel, eventstream.StageMerkleCommit, eventstream.StatusFailed, map[string]interface{}{"error": runErr.Error()})
		code := exitCodeFor(runErr)
		if repos != nil {
			_ = repos.Runs.CompleteRun(ctx, runID, database.RunStatusFailed, int(code), "", "", 0, 0, map[string]string{"error": runErr.Error()})
		}
		logger.Printf("pipeline run failed: %v", runErr)
		os.Exit(int(code))
	}
	stream.Publish(ctx, runLabel, eventstream.StageMerkleCommit, eventstream.StatusCompleted, map[string]interface{}{
		"country_count": report.CountryCount, "district_count": report.DistrictCount, "global_root": report.Manifest.GlobalRoot,
	})

	if err := persistArtifacts(*outputDir, report); err != nil {
		logger.Fatalf("write snapshot artifacts: %v", err)
	}
	logger.Printf("wrote manifest %s (global root %s) to %s", report.ManifestCID, report.Manifest.GlobalRoot, *outputDir)

	if repos != nil {
		if err := persistToDatabase(ctx, repos, runID, report); err != nil {
			logger.Fatalf("persist run to database: %v", err)
		}
	}

	exitCode := 0
	if len(cfg.PinningProviders) > 0 {
		exitCode = replicateAndRollout(ctx, cfg, repos, runID, report, logger, stream, runLabel)
	} else {
		logger.Printf("no pinning providers configured, skipping replication and staged rollout")
		if repos != nil {
			if err := repos.Snapshots.RecordPublished(ctx, report.ManifestCID, runID, report.Manifest.GlobalRoot); err != nil {
				logger.Printf("record snapshot: %v", err)
			}
			if err := repos.Snapshots.ActivatePointer(ctx, report.ManifestCID); err != nil {
				logger.Printf("activate pointer: %v", err)
			}
		}
	}

	os.Exit(exitCode)
}

func defaultVersion() string {
	return "v" + time.Now().UTC().Format("20060102150405")
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadReferenceTables(cfg *config.Config) (*reference.Tables, error) {
	if cfg.ReferenceDataPath == "" {
		return reference.LoadDefault()
	}
	data, err := os.ReadFile(cfg.ReferenceDataPath)
	if os.IsNotExist(err) {
		return reference.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	return reference.Load(data)
}

func loadTaxonomy(cfg *config.Config) (*taxonomy.Mapping, error) {
	if cfg.TaxonomyPath == "" {
		return taxonomy.LoadDefault()
	}
	data, err := os.ReadFile(cfg.TaxonomyPath)
	if os.IsNotExist(err) {
		return taxonomy.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	return taxonomy.Load(data)
}

// loadDatasets reads every *.json file in dir as a pipeline.RawDataset. A
// file that fails to parse or carries an invalid provenance record is
// logged and skipped rather than aborting the whole run, matching the
// per-dataset and per-feature processing the rest of the pipeline uses.
func loadDatasets(dir string, logger *log.Logger) ([]pipeline.RawDataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var datasets []pipeline.RawDataset
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			continue
		}
		var ds pipeline.RawDataset
		if err := json.Unmarshal(raw, &ds); err != nil {
			logger.Printf("skipping %s: invalid json: %v", path, err)
			continue
		}
		if err := ds.Provenance.Validate(); err != nil {
			logger.Printf("skipping %s: invalid provenance: %v", path, err)
			continue
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func leveldbShardStore(baseDir string) pipeline.ShardStore {
	return func(countryCode string) (interface {
		Get(key []byte) ([]byte, error)
		Set(key, value []byte) error
		Has(key []byte) (bool, error)
		Delete(key []byte) error
		Iterate(start, end []byte, fn func(key, value []byte) bool) error
	}, error) {
		db, err := dbm.NewGoLevelDB(countryCode, baseDir)
		if err != nil {
			return nil, fmt.Errorf("open shard for %s: %w", countryCode, err)
		}
		return kvdb.NewKVAdapter(db), nil
	}
}

func exitCodeFor(err error) pipeline.ExitCode {
	var fatal *pipeline.FatalError
	if errors.As(err, &fatal) {
		return fatal.Code
	}
	return pipeline.ExitValidationFatal
}

func persistArtifacts(outputDir string, report *pipeline.Report) error {
	manifestRaw, err := json.MarshalIndent(report.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return snapshot.WriteToDir(outputDir, manifestRaw, report.Artifacts)
}

func persistToDatabase(ctx context.Context, repos *database.Repositories, runID uuid.UUID, report *pipeline.Report) error {
	var districts []database.District
	for cc, entries := range report.Districts {
		commit := report.CountryCommits[cc]
		for _, e := range entries {
			leafHash := ""
			if commit != nil {
				if proof, err := commit.ProofForDistrict(e.DistrictID); err == nil {
					leafHash = proof.LeafHash
				}
			}
			districts = append(districts, database.District{
				DistrictID:    e.DistrictID,
				RunID:         runID,
				CountryCode:   cc,
				UniversalType: e.UniversalType,
				CanonicalName: e.CanonicalName,
				LeafHash:      leafHash,
				BBoxMinLon:    e.BBox.MinLon,
				BBoxMinLat:    e.BBox.MinLat,
				BBoxMaxLon:    e.BBox.MaxLon,
				BBoxMaxLat:    e.BBox.MaxLat,
			})
		}
	}
	if err := repos.Districts.UpsertBatch(ctx, districts); err != nil {
		return fmt.Errorf("upsert districts: %w", err)
	}

	return repos.Runs.CompleteRun(ctx, runID, database.RunStatusSucceeded, 0,
		report.Manifest.GlobalRoot, report.ManifestCID, report.CountryCount, report.DistrictCount, report.Summary)
}

// replicateAndRollout publishes the manifest to every configured pinning
// provider (C10) and, if rollout phases are configured, stages it through
// them before flipping the active pointer (C11). Returns the process exit
// code the outcome maps to.
func replicateAndRollout(ctx context.Context, cfg *config.Config, repos *database.Repositories, runID uuid.UUID, report *pipeline.Report, logger *log.Logger, stream *eventstream.Stream, runLabel string) int {
	manifestRaw, err := json.MarshalIndent(report.Manifest, "", "  ")
	if err != nil {
		logger.Printf("marshal manifest for replication: %v", err)
		return exitReplicationQuorumFailed
	}

	coord, err := newCoordinatorFromConfig(cfg, logger)
	if err != nil {
		logger.Printf("build replication coordinator: %v", err)
		return exitReplicationQuorumFailed
	}

	regions := allRegions(cfg.PinningProviders)
	stream.Publish(ctx, runLabel, eventstream.StageReplicate, eventstream.StatusStarted, map[string]interface{}{"regions": regions})
	for _, region := range regions {
		if _, err := coord.PublishToRegion(ctx, region, manifestRaw, uploadMetadataFor(report)); err != nil {
			stream.Publish(ctx, runLabel, eventstream.StageReplicate, eventstream.StatusFailed, map[string]interface{}{"region": region, "error": err.Error()})
			logger.Printf("initial replication to %s did not reach quorum: %v", region, err)
			if repos != nil {
				_ = repos.Runs.CompleteRun(ctx, runID, database.RunStatusFailed, exitReplicationQuorumFailed,
					report.Manifest.GlobalRoot, report.ManifestCID, report.CountryCount, report.DistrictCount, report.Summary)
			}
			return exitReplicationQuorumFailed
		}
	}
	stream.Publish(ctx, runLabel, eventstream.StageReplicate, eventstream.StatusCompleted, nil)

	if repos != nil {
		if err := repos.Snapshots.RecordPublished(ctx, report.ManifestCID, runID, report.Manifest.GlobalRoot); err != nil {
			logger.Printf("record snapshot: %v", err)
		}
	}

	pointer := &dbActivePointer{ctx: ctx, repos: repos, fallback: report.ManifestCID}
	publisher := &manifestPublisher{coord: coord, manifestRaw: manifestRaw, version: report.Manifest.Version}
	verifier := &gatewayVerifier{gateways: cfg.Gateways}

	ro := rollout.New(report.ManifestCID, cfg.RolloutPhases, publisher, verifier, pointer, logger)
	stream.Publish(ctx, runLabel, eventstream.StageRollout, eventstream.StatusStarted, map[string]interface{}{"phases": len(cfg.RolloutPhases)})

	if err := ro.Run(ctx); err != nil {
		var rbErr *rollout.RollbackError
		code := exitAborted
		if errors.As(err, &rbErr) && rbErr.Report.RestoredCID != "" && ro.Status() != rollout.StatusAborted {
			code = exitRolledBack
		}
		stream.Publish(ctx, runLabel, eventstream.StageRollout, eventstream.StatusFailed, map[string]interface{}{"error": err.Error()})
		logger.Printf("rollout did not complete: %v", err)
		if repos != nil {
			_ = repos.Runs.CompleteRun(ctx, runID, database.RunStatusRolledBack, code,
				report.Manifest.GlobalRoot, report.ManifestCID, report.CountryCount, report.DistrictCount, report.Summary)
		}
		return code
	}

	stream.Publish(ctx, runLabel, eventstream.StageRollout, eventstream.StatusCompleted, nil)
	logger.Printf("rollout completed, manifest %s is now active", report.ManifestCID)
	return 0
}
