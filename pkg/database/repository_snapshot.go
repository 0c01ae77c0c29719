// Copyright 2025 Certen Protocol
//
// Snapshot Repository - tracks published manifests and which one is
// currently active, mirroring the rollout coordinator's active pointer.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotRepository handles published-manifest bookkeeping.
type SnapshotRepository struct {
	client *Client
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(client *Client) *SnapshotRepository {
	return &SnapshotRepository{client: client}
}

// RecordPublished inserts a snapshot row for a published manifest, inactive
// until ActivatePointer flips it.
func (r *SnapshotRepository) RecordPublished(ctx context.Context, manifestCID string, runID uuid.UUID, globalRoot string) error {
	query := `
		INSERT INTO snapshots (manifest_cid, run_id, global_root, active, published_at)
		VALUES ($1, $2, $3, false, $4)
		ON CONFLICT (manifest_cid) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, manifestCID, runID, globalRoot, time.Now())
	if err != nil {
		return fmt.Errorf("record published snapshot: %w", err)
	}
	return nil
}

// ActivatePointer marks one manifest active and every other manifest
// inactive, in a single transaction, matching the rollout coordinator's
// invariant that exactly one manifest is ever the active pointer.
func (r *SnapshotRepository) ActivatePointer(ctx context.Context, manifestCID string) error {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("activate pointer: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET active = false WHERE active = true`); err != nil {
		return fmt.Errorf("activate pointer: clear: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE snapshots SET active = true WHERE manifest_cid = $1`, manifestCID)
	if err != nil {
		return fmt.Errorf("activate pointer: set: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate pointer: %w", err)
	}
	if rows == 0 {
		return ErrSnapshotNotFound
	}

	return tx.Commit()
}

// ActiveSnapshot returns whichever manifest is currently the active
// pointer, or ErrSnapshotNotFound if no rollout has ever completed.
func (r *SnapshotRepository) ActiveSnapshot(ctx context.Context) (*Snapshot, error) {
	query := `SELECT manifest_cid, run_id, global_root, active, published_at FROM snapshots WHERE active = true LIMIT 1`

	var s Snapshot
	err := r.client.QueryRowContext(ctx, query).Scan(&s.ManifestCID, &s.RunID, &s.GlobalRoot, &s.Active, &s.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active snapshot: %w", err)
	}
	return &s, nil
}
