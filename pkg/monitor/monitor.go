// Copyright 2025 Certen Protocol
//
// Availability Monitor (C12): actively probes every known gateway on a
// fixed interval and maintains a rolling window of outcomes per gateway,
// deriving success rate, latency percentiles, and an available/unavailable
// flag with failure/success hysteresis. Runs independently of the offline
// pipeline.

package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultProbeInterval is the cadence between probe rounds (spec.md §4.11).
const DefaultProbeInterval = 5 * time.Minute

// DefaultWindowSize is W, the rolling window of outcomes kept per gateway.
const DefaultWindowSize = 100

// DefaultConsecutiveFailuresToMarkDown is F_probe.
const DefaultConsecutiveFailuresToMarkDown = 3

// DefaultConsecutiveSuccessesToMarkUp is S_probe.
const DefaultConsecutiveSuccessesToMarkUp = 2

// Prober performs the bounded-timeout probe against one gateway and reports
// whether it succeeded, plus the observed latency.
type Prober interface {
	Probe(ctx context.Context, gatewayURL string) (ok bool, latency time.Duration, err error)
}

// gatewayState is the mutable, per-gateway rolling window. Writers serialize
// per-gateway (spec.md §5: "Writers serialize per-gateway record to keep
// rolling-window statistics coherent").
type gatewayState struct {
	mu sync.Mutex

	outcomes []bool // ring buffer of pass/fail, oldest first
	latencies []time.Duration

	consecutiveFailures  int
	consecutiveSuccesses int
	available            bool
}

func newGatewayState() *gatewayState {
	return &gatewayState{available: true}
}

func (g *gatewayState) record(ok bool, latency time.Duration, window int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.outcomes = append(g.outcomes, ok)
	if len(g.outcomes) > window {
		g.outcomes = g.outcomes[len(g.outcomes)-window:]
	}
	g.latencies = append(g.latencies, latency)
	if len(g.latencies) > window {
		g.latencies = g.latencies[len(g.latencies)-window:]
	}

	if ok {
		g.consecutiveSuccesses++
		g.consecutiveFailures = 0
		if !g.available && g.consecutiveSuccesses >= DefaultConsecutiveSuccessesToMarkUp {
			g.available = true
		}
	} else {
		g.consecutiveFailures++
		g.consecutiveSuccesses = 0
		if g.available && g.consecutiveFailures >= DefaultConsecutiveFailuresToMarkDown {
			g.available = false
		}
	}
}

// counts returns the raw successful and total probe counts in the current
// rolling window, used for exact cross-gateway aggregation (snapshot's
// SuccessRate is a lossy float for that purpose).
func (g *gatewayState) counts() (successful, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ok := range g.outcomes {
		if ok {
			successful++
		}
	}
	return successful, len(g.outcomes)
}

func (g *gatewayState) snapshot() GatewayHealth {
	g.mu.Lock()
	defer g.mu.Unlock()

	successCount := 0
	for _, ok := range g.outcomes {
		if ok {
			successCount++
		}
	}
	successRate := 1.0
	if len(g.outcomes) > 0 {
		successRate = float64(successCount) / float64(len(g.outcomes))
	}

	sorted := make([]time.Duration, len(g.latencies))
	copy(sorted, g.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return GatewayHealth{
		Available:           g.available,
		SuccessRate:         successRate,
		SampleCount:         len(g.outcomes),
		P50Latency:          percentile(sorted, 0.50),
		P95Latency:          percentile(sorted, 0.95),
		P99Latency:          percentile(sorted, 0.99),
		ConsecutiveFailures: g.consecutiveFailures,
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// GatewayHealth is a point-in-time read of one gateway's rolling statistics.
type GatewayHealth struct {
	Available           bool
	SuccessRate         float64
	SampleCount         int
	P50Latency          time.Duration
	P95Latency          time.Duration
	P99Latency          time.Duration
	ConsecutiveFailures int
}

// Monitor probes a set of gateways on an interval and tracks their rolling
// health.
type Monitor struct {
	prober   Prober
	interval time.Duration
	window   int

	mu       sync.RWMutex
	gateways map[string]*gatewayState

	probesTotal   *prometheus.CounterVec
	probeLatency  *prometheus.HistogramVec
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the default probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithWindow overrides the default rolling window size.
func WithWindow(n int) Option {
	return func(m *Monitor) { m.window = n }
}

// New builds a Monitor over the given canary URL probe and gateway set.
func New(prober Prober, registerer prometheus.Registerer, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: DefaultProbeInterval,
		window:   DefaultWindowSize,
		gateways: make(map[string]*gatewayState),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boundary_commit_gateway_probes_total",
			Help: "Total gateway probes, labeled by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boundary_commit_gateway_probe_latency_seconds",
			Help:    "Gateway probe latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if registerer != nil {
		registerer.MustRegister(m.probesTotal, m.probeLatency)
	}
	return m
}

func (m *Monitor) stateFor(gateway string) *gatewayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.gateways[gateway]
	if !ok {
		s = newGatewayState()
		m.gateways[gateway] = s
	}
	return s
}

// ProbeOnce probes a single gateway immediately and records the outcome.
func (m *Monitor) ProbeOnce(ctx context.Context, gateway, canaryURL string) {
	start := time.Now()
	ok, latency, err := m.prober.Probe(ctx, canaryURL)
	if err != nil {
		ok = false
	}
	if latency == 0 {
		latency = time.Since(start)
	}

	m.stateFor(gateway).record(ok, latency, m.window)

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.probesTotal.WithLabelValues(gateway, outcome).Inc()
	m.probeLatency.WithLabelValues(gateway).Observe(latency.Seconds())
}

// Run probes every gateway in the map (gateway name -> canary URL) on the
// configured interval until ctx is cancelled. This is the monitor's
// background task; it shares no mutable state with pipeline execution
// beyond the append-only per-gateway counters.
func (m *Monitor) Run(ctx context.Context, canaryURLs map[string]string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		for gateway, url := range canaryURLs {
			m.ProbeOnce(ctx, gateway, url)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Health returns the current rolling statistics for gateway, or false if it
// has never been probed.
func (m *Monitor) Health(gateway string) (GatewayHealth, bool) {
	m.mu.RLock()
	s, ok := m.gateways[gateway]
	m.mu.RUnlock()
	if !ok {
		return GatewayHealth{}, false
	}
	return s.snapshot(), true
}

// GlobalAvailability is successful_probes / total_probes across every
// tracked gateway's current rolling window (testable property 10: "reported
// availability over any closed window equals successful_probes /
// total_probes for that window"). This is distinct from
// GlobalHealthyFraction, which reports the fraction of gateways the
// hysteresis state machine currently considers up.
func (m *Monitor) GlobalAvailability() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.gateways) == 0 {
		return 1.0
	}
	var totalProbes, successfulProbes int
	for _, s := range m.gateways {
		successful, total := s.counts()
		successfulProbes += successful
		totalProbes += total
	}
	if totalProbes == 0 {
		return 1.0
	}
	return float64(successfulProbes) / float64(totalProbes)
}

// GlobalHealthyFraction is the fraction of tracked gateways the hysteresis
// state machine currently considers available — a coarser, flappier-proof
// signal than GlobalAvailability, used for alerting on "too many gateways
// are flagged down" rather than for SLA reporting.
func (m *Monitor) GlobalHealthyFraction() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.gateways) == 0 {
		return 1.0
	}
	available := 0
	for _, s := range m.gateways {
		if s.snapshot().Available {
			available++
		}
	}
	return float64(available) / float64(len(m.gateways))
}

// SLAResult is the outcome of an SLA check against a target availability.
type SLAResult struct {
	TargetAvailability   float64 `json:"target_availability"`
	ObservedAvailability float64 `json:"observed_availability"`
	Met                  bool    `json:"met"`
}

// CheckSLA reports whether the current global availability meets target.
func (m *Monitor) CheckSLA(target float64) SLAResult {
	observed := m.GlobalAvailability()
	return SLAResult{
		TargetAvailability:   target,
		ObservedAvailability: observed,
		Met:                  observed >= target,
	}
}
