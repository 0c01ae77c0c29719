// Copyright 2025 Certen Protocol

package geometry

import "errors"

// Sentinel errors returned by Normalize, wrapped with context via %w.
var (
	ErrAllFeaturesRejected = errors.New("geometry: all features rejected during cleaning")
	ErrTopologyUnrepairable = errors.New("geometry: topology could not be repaired after one attempt")
)
