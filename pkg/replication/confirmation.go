// Copyright 2025 Certen Protocol
//
// Confirmation tracking: periodically polls pinning providers for replica
// status until every expected replica is confirmed pinned, or the deadline
// passes.

package replication

import (
	"context"
	"fmt"
	"log"
	"time"
)

// StatusChecker is the subset of a pinning provider's interface needed to
// poll for replica confirmation (spec.md §6: "status(content_address) →
// { pinned, replicas, last_seen }").
type StatusChecker interface {
	ID() string
	Status(ctx context.Context, contentAddress string) (ReplicaStatus, error)
}

// ReplicaStatus is one provider's report on a content address.
type ReplicaStatus struct {
	Pinned   bool      `json:"pinned"`
	Replicas int       `json:"replicas"`
	LastSeen time.Time `json:"last_seen"`
}

// ConfirmationTracker polls a set of providers until a content address is
// confirmed pinned by all of them or the poll budget is exhausted.
type ConfirmationTracker struct {
	pollInterval time.Duration
	maxAttempts  int
	logger       *log.Logger
}

// NewConfirmationTracker builds a tracker with the given poll cadence and
// attempt budget.
func NewConfirmationTracker(pollInterval time.Duration, maxAttempts int, logger *log.Logger) *ConfirmationTracker {
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}
	if maxAttempts == 0 {
		maxAttempts = 6
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[replication-confirm] ", log.LstdFlags)
	}
	return &ConfirmationTracker{pollInterval: pollInterval, maxAttempts: maxAttempts, logger: logger}
}

// Await polls every checker for contentAddress until each reports pinned or
// the context is done, whichever comes first. Returns the last observed
// status per provider.
func (t *ConfirmationTracker) Await(ctx context.Context, contentAddress string, checkers []StatusChecker) (map[string]ReplicaStatus, error) {
	results := make(map[string]ReplicaStatus, len(checkers))
	pending := make(map[string]StatusChecker, len(checkers))
	for _, c := range checkers {
		pending[c.ID()] = c
	}

	for attempt := 0; attempt < t.maxAttempts && len(pending) > 0; attempt++ {
		for id, c := range pending {
			status, err := c.Status(ctx, contentAddress)
			if err != nil {
				t.logger.Printf("status check failed: provider=%s err=%v", id, err)
				continue
			}
			results[id] = status
			if status.Pinned {
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}

	if len(pending) > 0 {
		unconfirmed := make([]string, 0, len(pending))
		for id := range pending {
			unconfirmed = append(unconfirmed, id)
		}
		return results, fmt.Errorf("replication: %d provider(s) never confirmed pin for %s: %v", len(unconfirmed), contentAddress, unconfirmed)
	}
	return results, nil
}
