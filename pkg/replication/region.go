// Copyright 2025 Certen Protocol
//
// Per-region upload fan-out: contacts the configured replication factor of
// providers in parallel, retries each with exponential backoff up to the
// configured attempt budget, and declares the region successful once at
// least the quorum of providers return a matching content address.

package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultReplicationFactorPerRegion is K in spec.md §4.9.
	DefaultReplicationFactorPerRegion = 3
	// DefaultQuorumPerRegion is Q in spec.md §4.9.
	DefaultQuorumPerRegion = 2
	// DefaultUploadRetryAttempts is R in spec.md §4.9.
	DefaultUploadRetryAttempts = 3
	// DefaultCircuitBreakerThreshold is F in spec.md §4.9.
	DefaultCircuitBreakerThreshold = 3
)

// Config holds the replication service's tunables (spec.md §6 configuration
// inputs table).
type Config struct {
	ReplicationFactorPerRegion int
	QuorumPerRegion            int
	UploadRetryAttempts        int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		ReplicationFactorPerRegion: DefaultReplicationFactorPerRegion,
		QuorumPerRegion:            DefaultQuorumPerRegion,
		UploadRetryAttempts:        DefaultUploadRetryAttempts,
	}
}

// Coordinator fans an artifact out to every provider serving a region and
// resolves quorum.
type Coordinator struct {
	cfg        Config
	providers  []PinningService
	costs      *CostTracker
	logger     *log.Logger
}

// NewCoordinator builds a Coordinator over the given provider set.
func NewCoordinator(cfg Config, providers []PinningService, costs *CostTracker, logger *log.Logger) *Coordinator {
	if cfg.ReplicationFactorPerRegion == 0 {
		cfg.ReplicationFactorPerRegion = DefaultReplicationFactorPerRegion
	}
	if cfg.QuorumPerRegion == 0 {
		cfg.QuorumPerRegion = DefaultQuorumPerRegion
	}
	if cfg.UploadRetryAttempts == 0 {
		cfg.UploadRetryAttempts = DefaultUploadRetryAttempts
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[replication] ", log.LstdFlags)
	}
	return &Coordinator{cfg: cfg, providers: providers, costs: costs, logger: logger}
}

// UploadResult is the outcome of publishing one artifact to one region.
type UploadResult struct {
	Region         string
	ContentAddress string
	Replicas       []ReplicaDescriptor
	Failures       map[string]error
}

// providersForRegion returns up to the replication factor of providers that
// serve region.
func (c *Coordinator) providersForRegion(region string) []PinningService {
	var matched []PinningService
	for _, p := range c.providers {
		for _, r := range p.SupportedRegions() {
			if r == region {
				matched = append(matched, p)
				break
			}
		}
		if len(matched) >= c.cfg.ReplicationFactorPerRegion {
			break
		}
	}
	return matched
}

// PublishToRegion uploads artifact to every provider serving region in
// parallel, retrying each with exponential backoff, and returns once every
// provider has either succeeded or exhausted its retries. The region
// succeeds when at least the quorum of providers returned matching content
// addresses.
func (c *Coordinator) PublishToRegion(ctx context.Context, region string, artifact []byte, metadata UploadMetadata) (*UploadResult, error) {
	providers := c.providersForRegion(region)
	if len(providers) == 0 {
		return nil, fmt.Errorf("replication: no providers configured for region %s", region)
	}

	replicas := make([]ReplicaDescriptor, 0, len(providers))
	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range providers {
		wg.Add(1)
		go func(p PinningService) {
			defer wg.Done()
			replica, err := c.uploadWithRetry(ctx, p, artifact, metadata)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[p.ID()] = err
				return
			}
			replicas = append(replicas, replica)
			if c.costs != nil {
				if meta, ok := p.(interface{ Metadata() ProviderMetadata }); ok {
					c.costs.RecordUpload(meta.Metadata(), int64(len(artifact)))
				}
			}
		}(p)
	}
	wg.Wait()

	result := &UploadResult{Region: region, Replicas: replicas, Failures: failures}

	if len(replicas) < c.cfg.QuorumPerRegion {
		return result, fmt.Errorf("%w: region %s got %d/%d", ErrQuorumNotMet, region, len(replicas), c.cfg.QuorumPerRegion)
	}

	address := replicas[0].ContentAddress
	for _, r := range replicas[1:] {
		if r.ContentAddress != address {
			return result, fmt.Errorf("%w: region %s: %s vs %s", ErrContentAddressMismatch, region, address, r.ContentAddress)
		}
	}
	result.ContentAddress = address

	return result, nil
}

func (c *Coordinator) uploadWithRetry(ctx context.Context, p PinningService, artifact []byte, metadata UploadMetadata) (ReplicaDescriptor, error) {
	var result ReplicaDescriptor
	attempts := 0

	operation := func() error {
		attempts++
		replica, err := p.Upload(ctx, artifact, metadata)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			if attempts >= c.cfg.UploadRetryAttempts {
				return backoff.Permanent(err)
			}
			if !errors.Is(err, ErrNetworkTimeout) && attempts >= 2 {
				return backoff.Permanent(err)
			}
			return err
		}
		result = replica
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.UploadRetryAttempts-1)), ctx)
	err := backoff.Retry(operation, policy)
	if err != nil {
		c.logger.Printf("upload failed: provider=%s attempts=%d err=%v", p.ID(), attempts, err)
		return ReplicaDescriptor{}, err
	}
	return result, nil
}
