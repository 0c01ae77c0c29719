// Copyright 2025 Certen Protocol

package monitor

import (
	"context"
	"testing"
	"time"
)

type fakeProber struct {
	results map[string]bool // gateway URL -> outcome
}

func (f *fakeProber) Probe(ctx context.Context, gatewayURL string) (bool, time.Duration, error) {
	return f.results[gatewayURL], 10 * time.Millisecond, nil
}

func TestMonitor_TracksSuccessRate(t *testing.T) {
	prober := &fakeProber{results: map[string]bool{"canary": true}}
	m := New(prober, nil)

	for i := 0; i < 10; i++ {
		m.ProbeOnce(context.Background(), "gw1", "canary")
	}

	health, ok := m.Health("gw1")
	if !ok {
		t.Fatal("expected health record for gw1")
	}
	if health.SuccessRate != 1.0 {
		t.Errorf("expected success rate 1.0, got %f", health.SuccessRate)
	}
	if !health.Available {
		t.Error("expected gateway to remain available")
	}
}

func TestMonitor_MarksUnavailableAfterConsecutiveFailures(t *testing.T) {
	prober := &fakeProber{results: map[string]bool{"canary": false}}
	m := New(prober, nil)

	for i := 0; i < DefaultConsecutiveFailuresToMarkDown; i++ {
		m.ProbeOnce(context.Background(), "gw1", "canary")
	}

	health, _ := m.Health("gw1")
	if health.Available {
		t.Error("expected gateway marked unavailable after consecutive failures")
	}
}

func TestMonitor_RecoversAfterConsecutiveSuccesses(t *testing.T) {
	prober := &fakeProber{results: map[string]bool{"canary": false}}
	m := New(prober, nil)
	for i := 0; i < DefaultConsecutiveFailuresToMarkDown; i++ {
		m.ProbeOnce(context.Background(), "gw1", "canary")
	}

	prober.results["canary"] = true
	for i := 0; i < DefaultConsecutiveSuccessesToMarkUp; i++ {
		m.ProbeOnce(context.Background(), "gw1", "canary")
	}

	health, _ := m.Health("gw1")
	if !health.Available {
		t.Error("expected gateway to recover after consecutive successes")
	}
}

func TestMonitor_GlobalAvailabilityIsSuccessfulOverTotalProbes(t *testing.T) {
	prober := &fakeProber{results: map[string]bool{"up": true, "down": false}}
	m := New(prober, nil)

	m.ProbeOnce(context.Background(), "gw-up", "up")
	for i := 0; i < DefaultConsecutiveFailuresToMarkDown; i++ {
		m.ProbeOnce(context.Background(), "gw-down", "down")
	}

	// 1 successful probe (gw-up) out of 4 total probes (1 + 3 failures).
	avail := m.GlobalAvailability()
	if avail != 0.25 {
		t.Errorf("expected 25%% global availability (1/4 probes succeeded), got %f", avail)
	}

	sla := m.CheckSLA(0.999)
	if sla.Met {
		t.Error("expected SLA check to fail at 25%% availability against a 99.9%% target")
	}
}

func TestMonitor_GlobalHealthyFractionIsFractionOfUpGateways(t *testing.T) {
	prober := &fakeProber{results: map[string]bool{"up": true, "down": false}}
	m := New(prober, nil)

	m.ProbeOnce(context.Background(), "gw-up", "up")
	for i := 0; i < DefaultConsecutiveFailuresToMarkDown; i++ {
		m.ProbeOnce(context.Background(), "gw-down", "down")
	}

	// 1 of 2 tracked gateways is currently flagged available, regardless of
	// how many probes each has accumulated.
	frac := m.GlobalHealthyFraction()
	if frac != 0.5 {
		t.Errorf("expected 50%% healthy-gateway fraction, got %f", frac)
	}
}

func TestMonitor_UnknownGatewayNotFound(t *testing.T) {
	m := New(&fakeProber{}, nil)
	_, ok := m.Health("never-probed")
	if ok {
		t.Error("expected unknown gateway to report not found")
	}
}
