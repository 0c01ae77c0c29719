// Copyright 2025 Certen Protocol
//
// Router wires the introspection endpoints onto a single mux, matching
// the flat net/http ServeMux style the bootstrap process used for its
// health/metrics/API surface.

package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/geomesh/boundary-commit/pkg/database"
)

// NewMux builds the HTTP mux for cmd/pipeline-status.
func NewMux(repos *database.Repositories, logger *log.Logger) *http.ServeMux {
	snapshotHandlers := NewSnapshotHandlers(repos, logger)
	proofHandlers := NewProofHandlers(repos, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/snapshot/latest", snapshotHandlers.HandleLatestSnapshot)
	mux.HandleFunc("/api/v1/proof/", proofHandlers.HandleDistrictProof)
	mux.HandleFunc("/api/v1/runs/", func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
		runID = strings.TrimSuffix(runID, "/")
		snapshotHandlers.HandleRunReport(w, r, runID)
	})
	return mux
}
