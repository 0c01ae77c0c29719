// Copyright 2025 Certen Protocol

package eventstream

import (
	"context"
	"fmt"
	"testing"
)

type fakeSink struct {
	written []Event
	failOn  Stage
}

func (f *fakeSink) Write(ctx context.Context, e Event) error {
	if e.Stage == f.failOn {
		return fmt.Errorf("simulated sink failure for stage %s", e.Stage)
	}
	f.written = append(f.written, e)
	return nil
}

func TestStream_PublishAppendsAndChains(t *testing.T) {
	s := New(nil, nil)
	s.Publish(context.Background(), "run1", StageIngest, StatusCompleted, nil)
	s.Publish(context.Background(), "run1", StageNormalize, StatusCompleted, nil)

	events := s.Events("run1")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].PreviousHash != events[0].EventHash {
		t.Error("expected second event to chain onto first")
	}
}

func TestStream_PublishForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	s := New(sink, nil)
	s.Publish(context.Background(), "run1", StageIngest, StatusStarted, nil)

	if len(sink.written) != 1 {
		t.Fatalf("expected sink to receive 1 event, got %d", len(sink.written))
	}
}

func TestStream_SinkFailureDoesNotLoseInMemoryEvent(t *testing.T) {
	sink := &fakeSink{failOn: StageIngest}
	s := New(sink, nil)
	s.Publish(context.Background(), "run1", StageIngest, StatusStarted, nil)

	events := s.Events("run1")
	if len(events) != 1 {
		t.Fatalf("expected event retained in memory despite sink failure, got %d", len(events))
	}
}

func TestStream_VerifyChainDetectsBreak(t *testing.T) {
	s := New(nil, nil)
	s.Publish(context.Background(), "run1", StageIngest, StatusCompleted, nil)
	s.Publish(context.Background(), "run1", StageNormalize, StatusCompleted, nil)

	if idx := s.VerifyChain("run1"); idx != -1 {
		t.Fatalf("expected intact chain, broke at %d", idx)
	}

	s.mu.Lock()
	s.runs["run1"][1].Status = StatusFailed
	s.mu.Unlock()

	if idx := s.VerifyChain("run1"); idx != 1 {
		t.Errorf("expected break detected at index 1, got %d", idx)
	}
}

func TestStream_EventsForUnknownRunIsEmpty(t *testing.T) {
	s := New(nil, nil)
	if events := s.Events("never-seen"); len(events) != 0 {
		t.Errorf("expected empty slice for unknown run, got %d events", len(events))
	}
}
