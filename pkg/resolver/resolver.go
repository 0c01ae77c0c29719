// Copyright 2025 Certen Protocol
//
// Fallback Resolver (C13): given a content address and a user region,
// selects a gateway tier by tier (primary -> regional secondary ->
// cross-region -> global public), backing off exponentially between tiers,
// caching the last successful gateway per content address and recent
// per-gateway failures to avoid thrashing.

package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSuccessCacheTTL is the lifetime of "last gateway that worked for
// this CID" entries (spec.md §4.12, default 1h).
const DefaultSuccessCacheTTL = 1 * time.Hour

// DefaultFailureCacheTTL is the lifetime of "this gateway recently failed"
// entries (spec.md §4.12, default 5min).
const DefaultFailureCacheTTL = 5 * time.Minute

// DefaultBaseBackoff is the starting delay between tier attempts; it
// doubles on each subsequent attempt.
const DefaultBaseBackoff = 200 * time.Millisecond

// Gateway describes one known gateway's static placement and priority.
type Gateway struct {
	Name           string
	Region         string
	Priority       int // lower is higher priority within a region
	IsGlobalPublic bool
}

// HealthProvider reports a gateway's current availability and latency.
// Implemented in production by cmd/resolver's adapter over pkg/monitor;
// kept as an interface here so
// this package has no import dependency on the monitor's probing machinery.
type HealthProvider interface {
	IsAvailable(gateway string) bool
	P50Latency(gateway string) time.Duration
}

// Fetcher performs the actual HTTP GET against a gateway for a content
// address.
type Fetcher interface {
	Fetch(ctx context.Context, gateway, contentAddress string) ([]byte, error)
}

// RegionAdjacency maps a region to its neighbouring regions, ordered
// closest-first, used by the cross-region tier.
type RegionAdjacency map[string][]string

// Result is what Resolve returns alongside the content bytes.
type Result struct {
	GatewayUsed       string        `json:"gateway_used"`
	AttemptCount      int           `json:"attempt_count"`
	TotalDuration     time.Duration `json:"total_duration_ms"`
	ErrorsEncountered []string      `json:"errors_encountered,omitempty"`
}

// ErrExhausted is returned when every tier failed.
var ErrExhausted = fmt.Errorf("resolver: all tiers exhausted")

// Resolver implements the tiered gateway selection and fallback policy.
type Resolver struct {
	gateways  []Gateway
	adjacency RegionAdjacency
	health    HealthProvider
	fetcher   Fetcher

	successCache *lru.LRU[string, string]
	failureCache *lru.LRU[string, time.Time]

	baseBackoff time.Duration
}

// Config configures a Resolver.
type Config struct {
	Gateways        []Gateway
	Adjacency       RegionAdjacency
	Health          HealthProvider
	Fetcher         Fetcher
	SuccessCacheTTL time.Duration
	FailureCacheTTL time.Duration
	BaseBackoff     time.Duration
}

// New builds a Resolver from cfg, filling in documented defaults.
func New(cfg Config) *Resolver {
	successTTL := cfg.SuccessCacheTTL
	if successTTL == 0 {
		successTTL = DefaultSuccessCacheTTL
	}
	failureTTL := cfg.FailureCacheTTL
	if failureTTL == 0 {
		failureTTL = DefaultFailureCacheTTL
	}
	base := cfg.BaseBackoff
	if base == 0 {
		base = DefaultBaseBackoff
	}

	return &Resolver{
		gateways:     cfg.Gateways,
		adjacency:    cfg.Adjacency,
		health:       cfg.Health,
		fetcher:      cfg.Fetcher,
		successCache: lru.NewLRU[string, string](1024, nil, successTTL),
		failureCache: lru.NewLRU[string, time.Time](1024, nil, failureTTL),
		baseBackoff:  base,
	}
}

func (r *Resolver) recentlyFailed(gateway string) bool {
	_, ok := r.failureCache.Get(gateway)
	return ok
}

func (r *Resolver) inRegion(region string) []Gateway {
	var out []Gateway
	for _, g := range r.gateways {
		if g.Region == region && !g.IsGlobalPublic {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return r.health.P50Latency(out[i].Name) < r.health.P50Latency(out[j].Name)
	})
	return out
}

func (r *Resolver) globalPublic() []Gateway {
	var out []Gateway
	for _, g := range r.gateways {
		if g.IsGlobalPublic {
			out = append(out, g)
		}
	}
	return out
}

// tierOrder builds the full ordered candidate list: primary, regional
// secondary, cross-region (by adjacency), then global public, skipping
// unavailable or recently-failed gateways.
func (r *Resolver) tierOrder(userRegion string) []Gateway {
	var candidates []Gateway
	candidates = append(candidates, r.inRegion(userRegion)...)

	for _, neighbor := range r.adjacency[userRegion] {
		candidates = append(candidates, r.inRegion(neighbor)...)
	}
	candidates = append(candidates, r.globalPublic()...)

	var usable []Gateway
	for _, g := range candidates {
		if r.recentlyFailed(g.Name) {
			continue
		}
		if r.health != nil && !r.health.IsAvailable(g.Name) {
			continue
		}
		usable = append(usable, g)
	}
	return usable
}

// Resolve fetches contentAddress, trying gateways tier by tier until one
// succeeds or every candidate is exhausted.
func (r *Resolver) Resolve(ctx context.Context, contentAddress, userRegion string) ([]byte, Result, error) {
	start := time.Now()
	result := Result{}

	if cached, ok := r.successCache.Get(contentAddress); ok {
		if data, err := r.fetcher.Fetch(ctx, cached, contentAddress); err == nil {
			result.GatewayUsed = cached
			result.AttemptCount = 1
			result.TotalDuration = time.Since(start)
			return data, result, nil
		}
		r.failureCache.Add(cached, time.Now())
	}

	candidates := r.tierOrder(userRegion)
	backoff := r.baseBackoff

	for i, g := range candidates {
		result.AttemptCount++
		data, err := r.fetcher.Fetch(ctx, g.Name, contentAddress)
		if err == nil {
			r.successCache.Add(contentAddress, g.Name)
			result.GatewayUsed = g.Name
			result.TotalDuration = time.Since(start)
			return data, result, nil
		}

		r.failureCache.Add(g.Name, time.Now())
		result.ErrorsEncountered = append(result.ErrorsEncountered, fmt.Sprintf("%s: %v", g.Name, err))

		if i < len(candidates)-1 {
			select {
			case <-ctx.Done():
				result.TotalDuration = time.Since(start)
				return nil, result, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	result.TotalDuration = time.Since(start)
	return nil, result, ErrExhausted
}
