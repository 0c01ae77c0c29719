// Copyright 2025 Certen Protocol
//
// Database types for pipeline run reports, district records, and
// published snapshot manifests. These map directly to the schema in
// migrations/001_initial_schema.sql.

package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle of a pipeline run record.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRolledBack RunStatus = "rolled_back"
)

// Run is a single execution of the offline commitment pipeline.
type Run struct {
	RunID          uuid.UUID
	Version        string
	Status         RunStatus
	ExitCode       int
	GlobalRoot     string
	ManifestCID    string
	CountryCount   int
	DistrictCount  int
	SummaryJSON    json.RawMessage
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// NewRun is the input to create a Run row before the pipeline has finished.
type NewRun struct {
	Version string
}

// District is a single committed jurisdictional boundary row, keyed by
// the run that produced it (district identity is stable across runs but
// this table stores the per-run commitment outcome).
type District struct {
	DistrictID   string
	RunID        uuid.UUID
	CountryCode  string
	UniversalType string
	CanonicalName string
	LeafHash     string
	BBoxMinLon   float64
	BBoxMinLat   float64
	BBoxMaxLon   float64
	BBoxMaxLat   float64
	CreatedAt    time.Time
}

// Snapshot records a published manifest and the rollout that activated it.
type Snapshot struct {
	ManifestCID string
	RunID       uuid.UUID
	GlobalRoot  string
	Active      bool
	PublishedAt time.Time
}
