// Copyright 2025 Certen Protocol
//
// Regional Replication Service (C10): publishes snapshot artifacts to
// multiple independent pinning providers per region. One HTTPProvider per
// configured endpoint, each guarded by its own circuit breaker.

package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// PinningService is the abstract capability every storage provider exposes
// (spec.md §4.9): upload an artifact, healthcheck, and static metadata used
// for cost accounting and region targeting.
type PinningService interface {
	ID() string
	SupportedRegions() []string
	Upload(ctx context.Context, artifact []byte, metadata UploadMetadata) (ReplicaDescriptor, error)
	Healthcheck(ctx context.Context) bool
}

// UploadMetadata travels alongside the artifact bytes so a provider can tag
// and route the stored object.
type UploadMetadata struct {
	SnapshotVersion string `json:"snapshot_version"`
	CountryCode     string `json:"country_code,omitempty"`
	ArtifactName    string `json:"artifact_name"`
}

// ReplicaDescriptor is what a provider hands back after a successful upload.
type ReplicaDescriptor struct {
	ProviderID     string    `json:"provider_id"`
	ContentAddress string    `json:"content_address"`
	StoredAt       time.Time `json:"stored_at"`
}

// ProviderMetadata is the static cost/coverage metadata spec.md §4.9
// requires of every provider ({ id, supported_regions, per_GB_cost,
// free_tier_GB }).
type ProviderMetadata struct {
	ID               string   `json:"id"`
	SupportedRegions []string `json:"supported_regions"`
	PerGBCostUSD     float64  `json:"per_gb_cost_usd"`
	FreeTierGB       float64  `json:"free_tier_gb"`
}

// HTTPProvider is an HTTP-backed PinningService implementation, the shape
// every concrete provider plug-in this core ships with follows. None of
// these providers is named by the core's decision logic — it only ever
// talks to the PinningService interface.
type HTTPProvider struct {
	meta       ProviderMetadata
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *log.Logger
}

// HTTPProviderConfig configures one HTTPProvider.
type HTTPProviderConfig struct {
	Metadata             ProviderMetadata
	Endpoint             string
	RequestTimeout       time.Duration
	CircuitBreakerThreshold uint32 // consecutive failures before the breaker opens
	CircuitBreakerCooldown time.Duration
	Logger               *log.Logger
}

// NewHTTPProvider constructs an HTTPProvider with its own circuit breaker.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.Metadata.ID == "" {
		return nil, fmt.Errorf("replication: provider metadata.id is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("replication: provider endpoint is required")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	cooldown := cfg.CircuitBreakerCooldown
	if cooldown == 0 {
		cooldown = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), fmt.Sprintf("[provider:%s] ", cfg.Metadata.ID), log.LstdFlags)
	}

	settings := gobreaker.Settings{
		Name: cfg.Metadata.ID,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		Timeout: cooldown,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &HTTPProvider{
		meta:       cfg.Metadata,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}, nil
}

// ID implements PinningService.
func (p *HTTPProvider) ID() string { return p.meta.ID }

// SupportedRegions implements PinningService.
func (p *HTTPProvider) SupportedRegions() []string { return p.meta.SupportedRegions }

// Metadata returns the provider's static cost/coverage metadata.
func (p *HTTPProvider) Metadata() ProviderMetadata { return p.meta }

// Upload implements PinningService, routing the call through the provider's
// circuit breaker so repeated failures stop generating load against a
// provider that is known to be down.
func (p *HTTPProvider) Upload(ctx context.Context, artifact []byte, metadata UploadMetadata) (ReplicaDescriptor, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.doUpload(ctx, artifact, metadata)
	})
	if err != nil {
		return ReplicaDescriptor{}, err
	}
	return result.(ReplicaDescriptor), nil
}

func (p *HTTPProvider) doUpload(ctx context.Context, artifact []byte, metadata UploadMetadata) (ReplicaDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/upload", bytes.NewReader(artifact))
	if err != nil {
		return ReplicaDescriptor{}, fmt.Errorf("replication: build request for %s: %w", p.meta.ID, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Snapshot-Version", metadata.SnapshotVersion)
	req.Header.Set("X-Artifact-Name", metadata.ArtifactName)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s: %v", ErrNetworkTimeout, p.meta.ID, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s returned %d", ErrAuthenticationFailed, p.meta.ID, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 507:
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s returned %d", ErrQuotaExceeded, p.meta.ID, resp.StatusCode)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s returned %d", ErrContentRejected, p.meta.ID, resp.StatusCode)
	case resp.StatusCode >= 500:
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s returned %d", ErrNetworkTimeout, p.meta.ID, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s returned %d", ErrUnknownFailure, p.meta.ID, resp.StatusCode)
	}

	var parsed struct {
		ContentAddress string `json:"content_address"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ReplicaDescriptor{}, fmt.Errorf("%w: %s: malformed response: %v", ErrUnknownFailure, p.meta.ID, err)
	}

	return ReplicaDescriptor{
		ProviderID:     p.meta.ID,
		ContentAddress: parsed.ContentAddress,
		StoredAt:       time.Now(),
	}, nil
}

// Healthcheck implements PinningService.
func (p *HTTPProvider) Healthcheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Status implements StatusChecker, polling the provider for replica
// confirmation on a previously uploaded content address.
func (p *HTTPProvider) Status(ctx context.Context, contentAddress string) (ReplicaStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/status/"+contentAddress, nil)
	if err != nil {
		return ReplicaStatus{}, fmt.Errorf("replication: build status request for %s: %w", p.meta.ID, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ReplicaStatus{}, fmt.Errorf("%w: %s: %v", ErrNetworkTimeout, p.meta.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ReplicaStatus{}, fmt.Errorf("%w: %s status returned %d", ErrUnknownFailure, p.meta.ID, resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var status ReplicaStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return ReplicaStatus{}, fmt.Errorf("%w: %s: malformed status response: %v", ErrUnknownFailure, p.meta.ID, err)
	}
	return status, nil
}
