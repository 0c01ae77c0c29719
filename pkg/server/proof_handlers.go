// Copyright 2025 Certen Protocol
//
// Proof API Handlers - rebuilds and serves Merkle inclusion proofs for a
// committed district on demand, so downstream residency-proof circuits
// never need direct database access.

package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/geomesh/boundary-commit/pkg/database"
	"github.com/geomesh/boundary-commit/pkg/merkle"
)

// ProofHandlers provides HTTP handlers for district proof lookups.
type ProofHandlers struct {
	repos  *database.Repositories
	logger *log.Logger
}

// NewProofHandlers creates new proof handlers.
func NewProofHandlers(repos *database.Repositories, logger *log.Logger) *ProofHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ProofAPI] ", log.LstdFlags)
	}
	return &ProofHandlers{repos: repos, logger: logger}
}

// HandleDistrictProof handles GET /api/v1/proof/{district_id}.
func (h *ProofHandlers) HandleDistrictProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	districtID := strings.TrimPrefix(r.URL.Path, "/api/v1/proof/")
	districtID = strings.TrimSuffix(districtID, "/")
	if districtID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_DISTRICT_ID", "district id is required")
		return
	}

	ctx := r.Context()
	district, err := h.repos.Districts.GetByID(ctx, districtID)
	if err == database.ErrDistrictNotFound {
		writeError(w, h.logger, http.StatusNotFound, "DISTRICT_NOT_FOUND", "no committed district with that id")
		return
	}
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load district")
		return
	}

	run, err := h.repos.Runs.GetRun(ctx, district.RunID)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load owning run")
		return
	}

	proof, err := h.rebuildProof(ctx, district, run.GlobalRoot)
	if err != nil {
		h.logger.Printf("rebuild proof for %s: %v", districtID, err)
		writeError(w, h.logger, http.StatusInternalServerError, "PROOF_REBUILD_FAILED", "failed to reconstruct inclusion proof")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, proof)
}

// rebuildProof re-derives a district's two-level inclusion proof purely
// from leaf hashes persisted in the districts table: every country in the
// run is rebuilt into a CountryCommit, then those roots are rebuilt into a
// GlobalCommit, matching exactly what C7/C8 did at run time. The server
// never keeps a Tree alive across requests; each lookup is recomputed.
func (h *ProofHandlers) rebuildProof(ctx context.Context, district *database.District, globalRoot string) (*merkle.DistrictProof, error) {
	countryCounts, err := h.repos.Districts.CountByCountry(ctx, district.RunID)
	if err != nil {
		return nil, fmt.Errorf("list countries for run: %w", err)
	}

	var target *merkle.CountryCommit
	commits := make([]*merkle.CountryCommit, 0, len(countryCounts))
	for cc := range countryCounts {
		commit, err := h.buildCountryCommit(ctx, district.RunID, cc)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
		if cc == district.CountryCode {
			target = commit
		}
	}
	if target == nil {
		return nil, fmt.Errorf("country %s has no districts in run %s", district.CountryCode, district.RunID)
	}

	countryProof, err := target.ProofForDistrict(district.DistrictID)
	if err != nil {
		return nil, fmt.Errorf("generate country inclusion proof: %w", err)
	}

	global, err := merkle.BuildGlobalCommit(commits)
	if err != nil {
		return nil, fmt.Errorf("rebuild global commit: %w", err)
	}
	if global.RootHex != globalRoot {
		return nil, fmt.Errorf("rebuilt global root %s does not match recorded root %s", global.RootHex, globalRoot)
	}

	globalProof, err := global.ProofForCountry(district.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("generate global inclusion proof: %w", err)
	}

	return &merkle.DistrictProof{
		DistrictID:      district.DistrictID,
		CountryCode:     district.CountryCode,
		LeafToCountry:   countryProof,
		CountryToGlobal: globalProof,
		GlobalRoot:      globalRoot,
	}, nil
}

func (h *ProofHandlers) buildCountryCommit(ctx context.Context, runID uuid.UUID, countryCode string) (*merkle.CountryCommit, error) {
	leafHexByID, err := h.repos.Districts.LeavesByCountry(ctx, runID, countryCode)
	if err != nil {
		return nil, fmt.Errorf("load leaves for %s: %w", countryCode, err)
	}

	leaves := make(map[string][]byte, len(leafHexByID))
	for id, leafHex := range leafHexByID {
		b, err := hex.DecodeString(leafHex)
		if err != nil {
			return nil, fmt.Errorf("decode leaf hash for %s: %w", id, err)
		}
		leaves[id] = b
	}

	commit, err := merkle.BuildCountryCommit(countryCode, leaves)
	if err != nil {
		return nil, fmt.Errorf("rebuild country commit for %s: %w", countryCode, err)
	}
	return commit, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
