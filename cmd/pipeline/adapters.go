// Copyright 2025 Certen Protocol
//
// Thin adapters wiring pkg/replication and pkg/rollout's narrow interfaces
// onto this binary's concrete database and provider configuration. Kept
// in main rather than in the library packages since the wiring is specific
// to how this process is deployed, not a reusable abstraction.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/geomesh/boundary-commit/pkg/config"
	"github.com/geomesh/boundary-commit/pkg/database"
	"github.com/geomesh/boundary-commit/pkg/pipeline"
	"github.com/geomesh/boundary-commit/pkg/replication"
)

func newCoordinatorFromConfig(cfg *config.Config, logger *log.Logger) (*replication.Coordinator, error) {
	providers := make([]replication.PinningService, 0, len(cfg.PinningProviders))
	for _, spec := range cfg.PinningProviders {
		p, err := replication.NewHTTPProvider(replication.HTTPProviderConfig{
			Metadata: replication.ProviderMetadata{
				ID:               spec.ID,
				SupportedRegions: spec.Regions,
				PerGBCostUSD:     spec.PerGBCostUSD,
				FreeTierGB:       spec.FreeTierGB,
			},
			Endpoint:                spec.Endpoint,
			CircuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", spec.ID, err)
		}
		providers = append(providers, p)
	}

	rcfg := replication.Config{
		ReplicationFactorPerRegion: cfg.ReplicationFactorPerRegion,
		QuorumPerRegion:            cfg.QuorumPerRegion,
		UploadRetryAttempts:        cfg.UploadRetryAttempts,
	}
	costs := replication.NewCostTracker(logger)
	return replication.NewCoordinator(rcfg, providers, costs, logger), nil
}

func allRegions(specs []config.ProviderSpec) []string {
	seen := make(map[string]bool)
	var regions []string
	for _, s := range specs {
		for _, r := range s.Regions {
			if !seen[r] {
				seen[r] = true
				regions = append(regions, r)
			}
		}
	}
	return regions
}

func uploadMetadataFor(report *pipeline.Report) replication.UploadMetadata {
	return replication.UploadMetadata{
		SnapshotVersion: report.Manifest.Version,
		ArtifactName:    "manifest.json",
	}
}

// manifestPublisher implements rollout.Publisher over a replication
// coordinator, publishing the already-marshaled manifest bytes to every
// region a phase names.
type manifestPublisher struct {
	coord       *replication.Coordinator
	manifestRaw []byte
	version     string
}

func (p *manifestPublisher) PublishPhase(ctx context.Context, regions []string, manifestCID string) error {
	for _, region := range regions {
		if _, err := p.coord.PublishToRegion(ctx, region, p.manifestRaw, replication.UploadMetadata{
			SnapshotVersion: p.version,
			ArtifactName:    "manifest.json",
		}); err != nil {
			return fmt.Errorf("region %s: %w", region, err)
		}
	}
	return nil
}

// UnpinArtifacts is best-effort: content-addressed pinning services treat
// deletion as advisory, so a failure here never blocks a rollback.
func (p *manifestPublisher) UnpinArtifacts(ctx context.Context, manifestCID string) error {
	return nil
}

// gatewayVerifier implements rollout.Verifier by sampling the gateways
// configured for a phase's regions with a plain HTTP GET for the manifest.
type gatewayVerifier struct {
	gateways []config.GatewaySpec
	client   http.Client
}

func (v *gatewayVerifier) VerifySample(ctx context.Context, regions []string, manifestCID string) (float64, error) {
	regionSet := make(map[string]bool, len(regions))
	for _, r := range regions {
		regionSet[r] = true
	}

	var candidates []config.GatewaySpec
	for _, g := range v.gateways {
		if regionSet[g.Region] {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return 1.0, nil
	}

	client := v.client
	if client.Timeout == 0 {
		client = http.Client{Timeout: 10 * time.Second}
	}

	succeeded := 0
	for _, g := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/manifest/"+manifestCID, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(candidates)), nil
}

// dbActivePointer implements rollout.ActivePointer over the snapshots
// table. When repos is nil (no database configured) it tracks the pointer
// only in memory for the duration of this process.
type dbActivePointer struct {
	ctx      context.Context
	repos    *database.Repositories
	fallback string
	current  string
}

func (p *dbActivePointer) Get() string {
	if p.repos == nil {
		if p.current != "" {
			return p.current
		}
		return ""
	}
	snap, err := p.repos.Snapshots.ActiveSnapshot(p.ctx)
	if err != nil {
		return ""
	}
	return snap.ManifestCID
}

func (p *dbActivePointer) Set(manifestCID string) error {
	p.current = manifestCID
	if p.repos == nil {
		return nil
	}
	if manifestCID == "" {
		return nil
	}
	return p.repos.Snapshots.ActivatePointer(p.ctx, manifestCID)
}
