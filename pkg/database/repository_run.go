// Copyright 2025 Certen Protocol
//
// Run Repository - CRUD operations for pipeline run records.

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRepository handles pipeline run record operations.
type RunRepository struct {
	client *Client
}

// NewRunRepository creates a new run repository.
func NewRunRepository(client *Client) *RunRepository {
	return &RunRepository{client: client}
}

// CreateRun inserts a new run row in the running state and returns its ID.
func (r *RunRepository) CreateRun(ctx context.Context, input NewRun) (uuid.UUID, error) {
	runID := uuid.New()
	query := `
		INSERT INTO pipeline_runs (run_id, version, status, started_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.client.ExecContext(ctx, query, runID, input.Version, RunStatusRunning, time.Now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

// CompleteRun records the outcome of a finished run.
func (r *RunRepository) CompleteRun(ctx context.Context, runID uuid.UUID, status RunStatus, exitCode int, globalRoot, manifestCID string, countryCount, districtCount int, summary interface{}) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("serialize run summary: %w", err)
	}

	query := `
		UPDATE pipeline_runs
		SET status = $1, exit_code = $2, global_root = $3, manifest_cid = $4,
		    country_count = $5, district_count = $6, summary = $7, finished_at = $8
		WHERE run_id = $9`

	result, err := r.client.ExecContext(ctx, query, status, exitCode, globalRoot, manifestCID,
		countryCount, districtCount, summaryJSON, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun fetches a run by ID.
func (r *RunRepository) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	query := `
		SELECT run_id, version, status, exit_code, global_root, manifest_cid,
		       country_count, district_count, summary, started_at, finished_at
		FROM pipeline_runs WHERE run_id = $1`

	var run Run
	var exitCode sql.NullInt64
	var globalRoot, manifestCID sql.NullString
	var summary []byte
	var finishedAt sql.NullTime

	err := r.client.QueryRowContext(ctx, query, runID).Scan(
		&run.RunID, &run.Version, &run.Status, &exitCode, &globalRoot, &manifestCID,
		&run.CountryCount, &run.DistrictCount, &summary, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run.ExitCode = int(exitCode.Int64)
	run.GlobalRoot = globalRoot.String
	run.ManifestCID = manifestCID.String
	run.SummaryJSON = summary
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// LatestSucceeded returns the most recently completed successful run.
func (r *RunRepository) LatestSucceeded(ctx context.Context) (*Run, error) {
	query := `
		SELECT run_id, version, status, exit_code, global_root, manifest_cid,
		       country_count, district_count, summary, started_at, finished_at
		FROM pipeline_runs
		WHERE status = $1
		ORDER BY finished_at DESC
		LIMIT 1`

	var run Run
	var exitCode sql.NullInt64
	var globalRoot, manifestCID sql.NullString
	var summary []byte
	var finishedAt sql.NullTime

	err := r.client.QueryRowContext(ctx, query, RunStatusSucceeded).Scan(
		&run.RunID, &run.Version, &run.Status, &exitCode, &globalRoot, &manifestCID,
		&run.CountryCount, &run.DistrictCount, &summary, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}

	run.ExitCode = int(exitCode.Int64)
	run.GlobalRoot = globalRoot.String
	run.ManifestCID = manifestCID.String
	run.SummaryJSON = summary
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}
