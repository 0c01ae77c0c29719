// Copyright 2025 Certen Protocol

package semantic

import "testing"

func TestScore_CouncilDistrictAccepted(t *testing.T) {
	res := Score("Honolulu City Council Districts", nil, DefaultThreshold)
	if !res.Accept {
		t.Errorf("expected council district dataset to be accepted, got score %d reasons %v", res.Score, res.Reasons)
	}
}

func TestScore_UrbanTreeCanopyForceRejected(t *testing.T) {
	res := Score("Urban Tree Canopy", nil, DefaultThreshold)
	if res.Accept {
		t.Error("expected tree canopy dataset to be rejected")
	}
	if res.Score != 0 {
		t.Errorf("expected score 0 for forced rejection, got %d", res.Score)
	}
	found := false
	for _, r := range res.Reasons {
		if r == "negative_keyword:canopy" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected negative_keyword:canopy reason, got %v", res.Reasons)
	}
}

func TestScore_ZoningRejected(t *testing.T) {
	res := Score("City Zoning Overlay Districts", nil, DefaultThreshold)
	if res.Accept {
		t.Error("expected zoning dataset to be rejected")
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := Score("County Commission Districts", []string{"legislative"}, DefaultThreshold)
	b := Score("County Commission Districts", []string{"legislative"}, DefaultThreshold)
	if a.Score != b.Score || a.Accept != b.Accept {
		t.Error("scoring was not deterministic for identical input")
	}
}

func TestScore_BelowThresholdRejected(t *testing.T) {
	res := Score("Miscellaneous Geographic Layer", nil, DefaultThreshold)
	if res.Accept {
		t.Error("expected dataset with no matching keywords to be rejected")
	}
}
