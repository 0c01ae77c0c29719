// Copyright 2025 Certen Protocol
//
// Cost tracking for the replication service: per-provider storage cost
// bookkeeping against each provider's per_GB_cost and free_tier_GB metadata.

package replication

import (
	"fmt"
	"log"
	"sync"
)

// CostTracker accumulates storage bytes uploaded per provider and estimates
// USD cost against each provider's advertised pricing.
type CostTracker struct {
	mu sync.RWMutex

	bytesByProvider map[string]int64
	uploadCount     map[string]int64
	metaByProvider  map[string]ProviderMetadata

	logger *log.Logger
}

// NewCostTracker creates an empty cost tracker.
func NewCostTracker(logger *log.Logger) *CostTracker {
	if logger == nil {
		logger = log.New(log.Writer(), "[replication-cost] ", log.LstdFlags)
	}
	return &CostTracker{
		bytesByProvider: make(map[string]int64),
		uploadCount:     make(map[string]int64),
		metaByProvider:  make(map[string]ProviderMetadata),
		logger:          logger,
	}
}

// RecordUpload records a successful upload of size bytes to the given
// provider, tagged with its metadata so cost can be computed later.
func (t *CostTracker) RecordUpload(meta ProviderMetadata, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bytesByProvider[meta.ID] += size
	t.uploadCount[meta.ID]++
	t.metaByProvider[meta.ID] = meta

	t.logger.Printf("recorded upload: provider=%s bytes=%d total_bytes=%d", meta.ID, size, t.bytesByProvider[meta.ID])
}

// ProviderCost is the cost estimate for one provider's accumulated uploads.
type ProviderCost struct {
	ProviderID   string  `json:"provider_id"`
	TotalBytes   int64   `json:"total_bytes"`
	UploadCount  int64   `json:"upload_count"`
	BillableGB   float64 `json:"billable_gb"`
	EstCostUSD   float64 `json:"est_cost_usd"`
}

// EstimateCost returns the current cost estimate for providerID, billing
// only bytes beyond its free tier.
func (t *CostTracker) EstimateCost(providerID string) (ProviderCost, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	meta, ok := t.metaByProvider[providerID]
	if !ok {
		return ProviderCost{}, fmt.Errorf("replication: no cost data recorded for provider %s", providerID)
	}

	totalGB := float64(t.bytesByProvider[providerID]) / (1 << 30)
	billableGB := totalGB - meta.FreeTierGB
	if billableGB < 0 {
		billableGB = 0
	}

	return ProviderCost{
		ProviderID:  providerID,
		TotalBytes:  t.bytesByProvider[providerID],
		UploadCount: t.uploadCount[providerID],
		BillableGB:  billableGB,
		EstCostUSD:  billableGB * meta.PerGBCostUSD,
	}, nil
}

// TotalCostUSD sums EstimateCost across every provider seen so far.
func (t *CostTracker) TotalCostUSD() float64 {
	t.mu.RLock()
	providerIDs := make([]string, 0, len(t.metaByProvider))
	for id := range t.metaByProvider {
		providerIDs = append(providerIDs, id)
	}
	t.mu.RUnlock()

	var total float64
	for _, id := range providerIDs {
		cost, err := t.EstimateCost(id)
		if err != nil {
			continue
		}
		total += cost.EstCostUSD
	}
	return total
}
