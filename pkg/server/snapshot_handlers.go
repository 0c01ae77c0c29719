// Copyright 2025 Certen Protocol
//
// Snapshot API Handlers - serves the currently active manifest and the
// summary of the run that produced it to downstream consumers.

package server

import (
	"log"
	"net/http"

	"github.com/geomesh/boundary-commit/pkg/database"
)

// SnapshotHandlers provides HTTP handlers for snapshot introspection.
type SnapshotHandlers struct {
	repos  *database.Repositories
	logger *log.Logger
}

// NewSnapshotHandlers creates new snapshot handlers.
func NewSnapshotHandlers(repos *database.Repositories, logger *log.Logger) *SnapshotHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[SnapshotAPI] ", log.LstdFlags)
	}
	return &SnapshotHandlers{repos: repos, logger: logger}
}

// HandleLatestSnapshot handles GET /api/v1/snapshot/latest.
func (h *SnapshotHandlers) HandleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	ctx := r.Context()
	snap, err := h.repos.Snapshots.ActiveSnapshot(ctx)
	if err == database.ErrSnapshotNotFound {
		writeError(w, h.logger, http.StatusNotFound, "NO_ACTIVE_SNAPSHOT", "no snapshot has been published yet")
		return
	}
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load active snapshot")
		return
	}

	run, err := h.repos.Runs.GetRun(ctx, snap.RunID)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load originating run")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"manifest_cid":   snap.ManifestCID,
		"global_root":    snap.GlobalRoot,
		"published_at":   snap.PublishedAt,
		"run_id":         run.RunID,
		"version":        run.Version,
		"country_count":  run.CountryCount,
		"district_count": run.DistrictCount,
	})
}

// HandleRunReport handles GET /api/v1/runs/{run_id}.
func (h *SnapshotHandlers) HandleRunReport(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	id, err := parseUUID(runID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_RUN_ID", "run id must be a UUID")
		return
	}

	run, err := h.repos.Runs.GetRun(r.Context(), id)
	if err == database.ErrRunNotFound {
		writeError(w, h.logger, http.StatusNotFound, "RUN_NOT_FOUND", "no such run")
		return
	}
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load run")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, run)
}
