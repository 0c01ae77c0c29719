// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for database operations
var (
	// ErrNotFound is returned when a requested entity is not found in the database
	ErrNotFound = errors.New("entity not found")

	// ErrRunNotFound is returned when a pipeline run record is not found
	ErrRunNotFound = errors.New("run not found")

	// ErrDistrictNotFound is returned when a district record is not found
	ErrDistrictNotFound = errors.New("district not found")

	// ErrSnapshotNotFound is returned when a snapshot manifest record is not found
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
