// Copyright 2025 Certen Protocol
//
// Staged Rollout Coordinator (C11): advances a snapshot through ordered
// regional phases (typically Americas -> Europe -> Asia/Pacific), verifying
// each phase against a configurable gateway sample before advancing, and
// rolling the active manifest pointer back atomically on failure.

package rollout

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the rollout's position in its state machine.
type Status string

const (
	StatusCreated     Status = "created"
	StatusUploading   Status = "uploading"   // phase_N_uploading, N tracked separately
	StatusVerifying   Status = "verifying"   // phase_N_verifying
	StatusCompleted   Status = "completed"
	StatusRollingBack Status = "rolling_back"
	StatusRolledBack  Status = "rolled_back"
	StatusAborted     Status = "aborted"
)

// DefaultVerificationThreshold is the minimum fraction of sampled gateways
// that must succeed for a phase to be considered healthy (spec.md §4.10:
// "default >= 80% of sampled gateways succeed").
const DefaultVerificationThreshold = 0.8

// Phase is one ordered step of a rollout: a set of regions, a delay before
// verification, and the success ratio required to advance.
type Phase struct {
	Regions         []string
	Delay           time.Duration
	MinSuccessRatio float64
}

// Publisher instructs the replication service (C10) to push a manifest's
// artifacts to a phase's regions and, on rollback, to unpin what was
// uploaded. Decoupled from pkg/replication's concrete types so this package
// has no import-time dependency on HTTP/circuit-breaker machinery.
type Publisher interface {
	PublishPhase(ctx context.Context, regions []string, manifestCID string) error
	UnpinArtifacts(ctx context.Context, manifestCID string) error
}

// Verifier samples gateways in a phase's regions and reports the fraction
// that returned the expected artifact bytes.
type Verifier interface {
	VerifySample(ctx context.Context, regions []string, manifestCID string) (successRatio float64, err error)
}

// ActivePointer is the atomically-revertible "current snapshot" reference
// every client resolves through. Set must be atomic with respect to
// concurrent Get calls.
type ActivePointer interface {
	Get() string
	Set(manifestCID string) error
}

// Report is the structured failure report emitted when a rollout rolls
// back or aborts (spec.md §4.10).
type Report struct {
	RolloutID    string    `json:"rollout_id"`
	ManifestCID  string    `json:"manifest_cid"`
	FailedPhase  int       `json:"failed_phase"`
	Reason       string    `json:"reason"`
	RestoredCID  string    `json:"restored_cid"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Rollout tracks one in-flight staged publication.
type Rollout struct {
	mu sync.Mutex

	ID          string
	ManifestCID string
	Phases      []Phase
	status      Status
	currentPhase int
	previousCID string

	publisher Publisher
	verifier  Verifier
	pointer   ActivePointer
	logger    *log.Logger
}

// New creates a rollout for manifestCID over the given ordered phases. The
// pointer's current value is captured as the rollback target.
func New(manifestCID string, phases []Phase, publisher Publisher, verifier Verifier, pointer ActivePointer, logger *log.Logger) *Rollout {
	if logger == nil {
		logger = log.New(log.Writer(), "[rollout] ", log.LstdFlags)
	}
	for i := range phases {
		if phases[i].MinSuccessRatio == 0 {
			phases[i].MinSuccessRatio = DefaultVerificationThreshold
		}
	}
	return &Rollout{
		ID:          uuid.NewString(),
		ManifestCID: manifestCID,
		Phases:      phases,
		status:      StatusCreated,
		previousCID: pointer.Get(),
		publisher:   publisher,
		verifier:    verifier,
		pointer:     pointer,
		logger:      logger,
	}
}

// Status returns the rollout's current state, safe for concurrent callers.
func (r *Rollout) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Rollout) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Run drives the rollout through every phase in order. It returns nil only
// once the rollout reaches StatusCompleted; any other outcome is returned as
// an error alongside a *Report describing the failure, obtainable via
// errors.As against *RollbackError.
func (r *Rollout) Run(ctx context.Context) error {
	r.setStatus(StatusUploading)

	for i, phase := range r.Phases {
		r.currentPhase = i

		r.setStatus(StatusUploading)
		if err := r.publisher.PublishPhase(ctx, phase.Regions, r.ManifestCID); err != nil {
			return r.rollback(ctx, i, fmt.Sprintf("publish failed: %v", err))
		}

		select {
		case <-ctx.Done():
			return r.abort(ctx, i, "context cancelled during inter-phase delay")
		case <-time.After(phase.Delay):
		}

		r.setStatus(StatusVerifying)
		ratio, err := r.verifier.VerifySample(ctx, phase.Regions, r.ManifestCID)
		if err != nil {
			return r.rollback(ctx, i, fmt.Sprintf("verification error: %v", err))
		}
		if ratio < phase.MinSuccessRatio {
			return r.rollback(ctx, i, fmt.Sprintf("verification ratio %.2f below threshold %.2f", ratio, phase.MinSuccessRatio))
		}

		r.logger.Printf("rollout %s: phase %d verified at ratio %.2f", r.ID, i, ratio)
	}

	if err := r.pointer.Set(r.ManifestCID); err != nil {
		return r.rollback(ctx, len(r.Phases)-1, fmt.Sprintf("failed to advance active pointer: %v", err))
	}
	r.setStatus(StatusCompleted)
	return nil
}

// RollbackError wraps a rollback/abort *Report so callers can distinguish a
// controlled rollback from an unrelated error.
type RollbackError struct {
	Report *Report
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollout %s: rolled back at phase %d: %s", e.Report.RolloutID, e.Report.FailedPhase, e.Report.Reason)
}

// runRollbackActions unpins newly uploaded artifacts (best-effort) and
// restores the previous active manifest pointer, returning the structured
// failure report. Does not itself change r.status; callers set the status
// that should remain visible once rollback actions finish.
func (r *Rollout) runRollbackActions(ctx context.Context, failedPhase int, reason string) *Report {
	r.logger.Printf("rollout %s: rolling back from phase %d: %s", r.ID, failedPhase, reason)

	if err := r.publisher.UnpinArtifacts(ctx, r.ManifestCID); err != nil {
		// Best-effort per spec.md §4.10: IPFS-style content addressing makes
		// deletion non-authoritative. Log and continue; the pointer revert
		// below is the part that must succeed.
		r.logger.Printf("rollout %s: unpin best-effort failed: %v", r.ID, err)
	}

	if err := r.pointer.Set(r.previousCID); err != nil {
		r.logger.Printf("rollout %s: FAILED to restore previous active pointer %s: %v", r.ID, r.previousCID, err)
	}

	return &Report{
		RolloutID:   r.ID,
		ManifestCID: r.ManifestCID,
		FailedPhase: failedPhase,
		Reason:      reason,
		RestoredCID: r.previousCID,
		OccurredAt:  time.Now(),
	}
}

func (r *Rollout) rollback(ctx context.Context, failedPhase int, reason string) error {
	r.setStatus(StatusRollingBack)
	report := r.runRollbackActions(ctx, failedPhase, reason)
	r.setStatus(StatusRolledBack)
	return &RollbackError{Report: report}
}

func (r *Rollout) abort(ctx context.Context, phase int, reason string) error {
	r.logger.Printf("rollout %s: aborting at phase %d: %s", r.ID, phase, reason)
	r.setStatus(StatusAborted)
	report := r.runRollbackActions(ctx, phase, reason)
	return &RollbackError{Report: report}
}
