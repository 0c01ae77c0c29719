// Copyright 2025 Certen Protocol
//
// Semantic Validator (C2): scores a dataset's declared title and properties
// against a weighted keyword set. Deterministic, pure function of dataset
// metadata; never raises — a low score is returned as a rejection, not an
// error.

package semantic

import "strings"

// DefaultThreshold is the score below which a dataset is rejected.
const DefaultThreshold = 30

// keyword weights. Positive keywords indicate the dataset is plausibly a
// governance boundary layer; negative keywords indicate a different layer
// type entirely (precincts, zoning, thematic overlays) and are weighted
// heavily enough that a single strong negative match forces rejection.
var positiveKeywords = map[string]int{
	"council":     25,
	"ward":        20,
	"district":    15,
	"commission":  15,
	"legislative": 15,
}

var negativeKeywords = map[string]int{
	"precinct":     -40,
	"zoning":       -60,
	"canopy":       -100,
	"census-tract": -60,
	"census tract": -60,
	"parcel":       -60,
}

// forcedRejectKeywords cause an immediate rejection regardless of
// accumulated score, matching the spec's concrete scenario 2 ("Urban Tree
// Canopy" -> score 0, rejection_reason = negative_keyword:canopy).
var forcedRejectKeywords = []string{"canopy", "zoning", "census-tract", "census tract", "parcel"}

// Result is the outcome of scoring a dataset.
type Result struct {
	Score   int
	Reasons []string
	Accept  bool
}

// Score evaluates a dataset's title and free-text properties. title and
// extraFields are treated as one combined corpus for keyword matching;
// matching is case-insensitive substring matching, which is sufficient for
// the closed keyword set this validator uses.
func Score(title string, extraFields []string, threshold int) Result {
	corpus := strings.ToLower(title)
	for _, f := range extraFields {
		corpus += " " + strings.ToLower(f)
	}

	var reasons []string
	score := 0
	forced := false

	for _, kw := range forcedRejectKeywords {
		if strings.Contains(corpus, kw) {
			reasons = append(reasons, "negative_keyword:"+kw)
			forced = true
		}
	}

	if !forced {
		for kw, weight := range positiveKeywords {
			if weight <= 0 {
				continue
			}
			if strings.Contains(corpus, kw) {
				score += weight
				reasons = append(reasons, "positive_keyword:"+kw)
			}
		}
		for kw, weight := range negativeKeywords {
			if weight >= 0 {
				continue
			}
			if strings.Contains(corpus, kw) {
				score += weight
				reasons = append(reasons, "negative_keyword:"+kw)
			}
		}
	}

	result := Result{Score: score, Reasons: reasons}
	if forced {
		result.Score = 0
		result.Accept = false
		return result
	}

	result.Accept = score >= threshold
	return result
}
