// Copyright 2025 Certen Protocol
//
// District Repository - persists the per-run district commitment rows
// used to serve proof lookups without re-reading snapshot archives.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DistrictRepository handles district record operations.
type DistrictRepository struct {
	client *Client
}

// NewDistrictRepository creates a new district repository.
func NewDistrictRepository(client *Client) *DistrictRepository {
	return &DistrictRepository{client: client}
}

// UpsertBatch inserts or replaces a batch of district rows for a run inside
// a single transaction, so a partial failure never leaves the batch
// half-written.
func (r *DistrictRepository) UpsertBatch(ctx context.Context, districts []District) error {
	if len(districts) == 0 {
		return nil
	}

	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert districts: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO districts
			(district_id, run_id, country_code, universal_type, canonical_name,
			 leaf_hash, bbox_min_lon, bbox_min_lat, bbox_max_lon, bbox_max_lat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (district_id, run_id) DO UPDATE SET
			leaf_hash = EXCLUDED.leaf_hash,
			canonical_name = EXCLUDED.canonical_name`)
	if err != nil {
		return fmt.Errorf("upsert districts: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range districts {
		if _, err := stmt.ExecContext(ctx, d.DistrictID, d.RunID, d.CountryCode, d.UniversalType,
			d.CanonicalName, d.LeafHash, d.BBoxMinLon, d.BBoxMinLat, d.BBoxMaxLon, d.BBoxMaxLat, now); err != nil {
			return fmt.Errorf("upsert districts: exec: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID fetches the most recent committed row for a district ID, across
// all runs, so a client resolving a residency proof always sees the
// latest commitment regardless of which run produced it.
func (r *DistrictRepository) GetByID(ctx context.Context, districtID string) (*District, error) {
	query := `
		SELECT district_id, run_id, country_code, universal_type, canonical_name,
		       leaf_hash, bbox_min_lon, bbox_min_lat, bbox_max_lon, bbox_max_lat, created_at
		FROM districts
		WHERE district_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var d District
	err := r.client.QueryRowContext(ctx, query, districtID).Scan(
		&d.DistrictID, &d.RunID, &d.CountryCode, &d.UniversalType, &d.CanonicalName,
		&d.LeafHash, &d.BBoxMinLon, &d.BBoxMinLat, &d.BBoxMaxLon, &d.BBoxMaxLat, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrDistrictNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get district: %w", err)
	}
	return &d, nil
}

// CountByCountry returns how many districts a run committed per country,
// used to cross-check a run report against what the database recorded.
func (r *DistrictRepository) CountByCountry(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	query := `SELECT country_code, COUNT(*) FROM districts WHERE run_id = $1 GROUP BY country_code`

	rows, err := r.client.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("count districts by country: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cc string
		var n int
		if err := rows.Scan(&cc, &n); err != nil {
			return nil, fmt.Errorf("count districts by country: %w", err)
		}
		counts[cc] = n
	}
	return counts, rows.Err()
}

// LeavesByCountry returns every committed district's leaf hash for one
// country in a run, keyed by district ID, so a caller can rebuild the
// country's Merkle tree without re-reading the snapshot archive.
func (r *DistrictRepository) LeavesByCountry(ctx context.Context, runID uuid.UUID, countryCode string) (map[string]string, error) {
	query := `SELECT district_id, leaf_hash FROM districts WHERE run_id = $1 AND country_code = $2`

	rows, err := r.client.QueryContext(ctx, query, runID, countryCode)
	if err != nil {
		return nil, fmt.Errorf("leaves by country: %w", err)
	}
	defer rows.Close()

	leaves := make(map[string]string)
	for rows.Next() {
		var id, leafHash string
		if err := rows.Scan(&id, &leafHash); err != nil {
			return nil, fmt.Errorf("leaves by country: %w", err)
		}
		leaves[id] = leafHash
	}
	return leaves, rows.Err()
}
