// Copyright 2025 Certen Protocol
//
// Geographic Validator (C3): validates a feature's geometry against
// authoritative country/subdivision bounding boxes shipped in pkg/reference.
// Uses no external network calls — all reference data ships with the
// pipeline, per spec.md §4.2.

package geographic

import (
	"github.com/geomesh/boundary-commit/pkg/geometry"
	"github.com/geomesh/boundary-commit/pkg/provenance"
	"github.com/geomesh/boundary-commit/pkg/reference"
)

// DefaultBBoxToleranceDeg is the slack applied when checking that a feature
// bbox is contained in its claimed jurisdiction bbox, so that features which
// legitimately touch the boundary are not rejected (spec.md §8 boundary
// behavior: "touches the state boundary on one side is accepted").
const DefaultBBoxToleranceDeg = 0.01

// Result is the outcome of validating one feature's geometry against
// jurisdictional reference data.
type Result struct {
	Valid      bool
	Confidence int // 0-100
	Reasons    []provenance.RejectionCode
}

// Validate checks a feature's geometry (already WGS84, pre-normalization is
// fine — this runs before C4) against the claimed country and, if declared,
// subdivision. datasetBBox is the union of every feature bbox in the
// dataset this feature belongs to, used for the cross-jurisdiction
// contamination check (spec.md §4.2c: "if the union of feature bboxes spans
// more than one subdivision") — a single feature's own bbox is too narrow a
// signal for that check, since a dataset can smuggle in out-of-jurisdiction
// features one at a time without any single feature looking anomalous.
func Validate(mp geometry.MultiPolygon, countryCode, subdivisionID string, tables *reference.Tables, toleranceDeg float64, datasetBBox geometry.BBox) Result {
	bbox, err := mp.BoundingBox()
	if err != nil {
		return Result{Valid: false, Reasons: []provenance.RejectionCode{provenance.RejectionOutsideJurisdictionBBox}}
	}

	centroid, err := mp.Centroid()
	if err != nil {
		return Result{Valid: false, Reasons: []provenance.RejectionCode{provenance.RejectionOutsideJurisdictionBBox}}
	}

	var reasons []provenance.RejectionCode
	confidence := 100

	if countryBBox, ok := tables.CountryBBox(countryCode); ok {
		if !countryBBox.ContainsBBox(bbox, toleranceDeg) {
			reasons = append(reasons, provenance.RejectionOutsideJurisdictionBBox)
		}
		if !countryBBox.Contains(centroid) {
			reasons = append(reasons, provenance.RejectionCentroidOutside)
		}
	}

	claimBBox := bbox
	if subdivisionID != "" {
		if subEntry, ok := tables.SubdivisionBBox(subdivisionID); ok {
			subBBox := subEntry.BBox()
			claimBBox = subBBox
			containedWithTolerance := subBBox.ContainsBBox(bbox, toleranceDeg)
			containedExact := subBBox.ContainsBBox(bbox, 0)
			centroidInside := subBBox.Contains(centroid)

			switch {
			case containedExact && centroidInside:
				// Clean accept.
			case containedWithTolerance && !centroidInside:
				// Borderline-fit tie-break: spec.md §4.2 says reject as low
				// confidence when bbox is within tolerance but centroid is
				// outside.
				reasons = append(reasons, provenance.RejectionCentroidOutside)
				confidence = 40
			case !containedWithTolerance:
				reasons = append(reasons, provenance.RejectionOutsideJurisdictionBBox)
				confidence = 0
			}
		}
	}

	if !subEntryAllowsMultiSubdivision(tables, subdivisionID) && spansMultipleSubdivisions(datasetBBox, claimBBox) {
		reasons = append(reasons, provenance.RejectionCrossJurisdiction)
		confidence = 0
	}

	valid := len(reasons) == 0
	if !valid && confidence == 100 {
		confidence = 50
	}

	return Result{Valid: valid, Confidence: confidence, Reasons: reasons}
}

func subEntryAllowsMultiSubdivision(tables *reference.Tables, subdivisionID string) bool {
	if subdivisionID == "" {
		return true
	}
	entry, ok := tables.SubdivisionBBox(subdivisionID)
	if !ok {
		return true
	}
	return entry.MultiSubdivision
}

// spansMultipleSubdivisions is a coarse heuristic: if the dataset's bbox
// (the union of every one of its feature bboxes, not just this one) is more
// than 1.5x the area of its claimed subdivision's bbox, the dataset likely
// spans into a neighboring subdivision. A tighter implementation would
// intersect against every neighboring subdivision's bbox; this pipeline
// ships a starter reference set too small for that, so the area-ratio
// heuristic is the practical check until more subdivisions are onboarded.
func spansMultipleSubdivisions(datasetBBox, claimBBox geometry.BBox) bool {
	claimArea := (claimBBox.MaxLon - claimBBox.MinLon) * (claimBBox.MaxLat - claimBBox.MinLat)
	if claimArea <= 0 {
		return false
	}
	datasetArea := (datasetBBox.MaxLon - datasetBBox.MinLon) * (datasetBBox.MaxLat - datasetBBox.MinLat)
	return datasetArea > claimArea*1.5
}
