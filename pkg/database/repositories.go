// Copyright 2025 Certen Protocol
//
// Repositories - Convenience wrapper for all database repositories
// Provides a single point of access to all repository types

package database

// Repositories holds all repository instances.
type Repositories struct {
	Runs      *RunRepository
	Districts *DistrictRepository
	Snapshots *SnapshotRepository
}

// NewRepositories creates all repositories with the given client.
func NewRepositories(client *Client) *Repositories {
	return &Repositories{
		Runs:      NewRunRepository(client),
		Districts: NewDistrictRepository(client),
		Snapshots: NewSnapshotRepository(client),
	}
}
