// Copyright 2025 Certen Protocol

// Package config loads the pipeline's environment-independent tunables
// (spec.md §6 configuration inputs) from environment variables, mirroring
// the teacher's flat Load/Validate shape rather than a nested YAML config
// tree: every knob here has a documented default and can be overridden by
// a single env var.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/geomesh/boundary-commit/pkg/geometry"
	"github.com/geomesh/boundary-commit/pkg/rollout"
)

// Config holds every tunable the pipeline reads at startup. Built once by
// Load and passed down as an immutable value into each component's own
// Config/Options struct, per the "explicit configuration records" design
// note.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database (run reports, district rows, provenance)
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Reference data and taxonomy
	ReferenceDataPath string
	TaxonomyPath      string

	// Geometry normalizer (C4)
	SimplificationToleranceDeg float64
	CoordinatePrecisionDigits  int

	// Count/reference validator (C5)
	CountValidatorTolerance int

	// Merkle commitment (C8) — fixed, listed for visibility only
	MerkleHashAlgorithm string

	// Replication (C10)
	ReplicationFactorPerRegion int
	QuorumPerRegion            int
	UploadRetryAttempts        int
	CircuitBreakerThreshold    uint32
	PinningProviders           []ProviderSpec

	// Staged rollout (C11)
	RolloutPhases []rollout.Phase

	// Availability monitor (C12)
	HealthcheckInterval time.Duration
	Gateways            []GatewaySpec

	// Fallback resolver (C13)
	ResolverCacheTTL      time.Duration
	ResolverFailureWindow time.Duration
	RegionAdjacency       map[string][]string

	// Event stream sink
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	LogLevel string
}

// ProviderSpec describes one pinning provider endpoint, as parsed from the
// PINNING_PROVIDERS env var (spec.md §4.9's provider metadata shape).
type ProviderSpec struct {
	ID           string
	Endpoint     string
	Regions      []string
	PerGBCostUSD float64
	FreeTierGB   float64
}

// GatewaySpec describes one content-serving gateway, as parsed from the
// GATEWAYS env var: name, region, priority, global-public flag, and the
// base URL used for both canary probes and fetches.
type GatewaySpec struct {
	Name           string
	Region         string
	Priority       int
	IsGlobalPublic bool
	BaseURL        string
}

// Load reads configuration from environment variables. Every field has a
// spec-mandated default; nothing here is required the way the teacher's
// chain credentials were, since an offline pipeline run has no external
// network identity to authenticate.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		ReferenceDataPath: getEnv("REFERENCE_DATA_PATH", "./data/reference.yaml"),
		TaxonomyPath:      getEnv("TAXONOMY_PATH", "./data/taxonomy.yaml"),

		SimplificationToleranceDeg: getEnvFloat("SIMPLIFICATION_TOLERANCE_DEG", geometry.DefaultSimplificationToleranceDeg),
		CoordinatePrecisionDigits:  getEnvInt("COORDINATE_PRECISION_DIGITS", geometry.DefaultCoordinatePrecisionDigits),

		CountValidatorTolerance: getEnvInt("COUNT_VALIDATOR_TOLERANCE", 2),

		MerkleHashAlgorithm: "keccak-256",

		ReplicationFactorPerRegion: getEnvInt("REPLICATION_FACTOR_PER_REGION", 3),
		QuorumPerRegion:            getEnvInt("QUORUM_PER_REGION", 2),
		UploadRetryAttempts:        getEnvInt("UPLOAD_RETRY_ATTEMPTS", 3),
		CircuitBreakerThreshold:    uint32(getEnvInt("CIRCUIT_BREAKER_THRESHOLD", 3)),
		PinningProviders:           parsePinningProviders(getEnv("PINNING_PROVIDERS", "")),

		RolloutPhases: parseRolloutPhases(getEnv("ROLLOUT_PHASES", "")),

		HealthcheckInterval: getEnvDuration("HEALTHCHECK_INTERVAL", 300*time.Second),
		Gateways:            parseGateways(getEnv("GATEWAYS", "")),

		ResolverCacheTTL:      getEnvDuration("RESOLVER_CACHE_TTL", 3600*time.Second),
		ResolverFailureWindow: getEnvDuration("RESOLVER_FAILURE_WINDOW", 300*time.Second),
		RegionAdjacency:       parseRegionAdjacency(getEnv("REGION_ADJACENCY", "")),

		FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that configuration is internally consistent. Unlike the
// teacher's chain-credential checks, nothing here is a hard network
// requirement — a misconfigured value is either out of range or
// contradicts another field.
func (c *Config) Validate() error {
	var errs []string

	if c.QuorumPerRegion > c.ReplicationFactorPerRegion {
		errs = append(errs, "QUORUM_PER_REGION cannot exceed REPLICATION_FACTOR_PER_REGION")
	}
	if c.CoordinatePrecisionDigits < 0 || c.CoordinatePrecisionDigits > 15 {
		errs = append(errs, "COORDINATE_PRECISION_DIGITS must be between 0 and 15")
	}
	if c.SimplificationToleranceDeg < 0 {
		errs = append(errs, "SIMPLIFICATION_TOLERANCE_DEG must not be negative")
	}
	if c.UploadRetryAttempts < 1 {
		errs = append(errs, "UPLOAD_RETRY_ATTEMPTS must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseRolloutPhases parses a compact phase list of the form
// "regions1|delay1|ratio1;regions2|delay2|ratio2" e.g.
// "us-east,us-west|30s|0.8;eu-west,ap-south|60s|0.9". An empty value
// yields the single-phase, all-regions-at-once default used by local runs.
func parseRolloutPhases(value string) []rollout.Phase {
	defaultPhases := []rollout.Phase{
		{Regions: []string{"us-east", "us-west", "eu-west"}, Delay: 0, MinSuccessRatio: rollout.DefaultVerificationThreshold},
	}
	if value == "" {
		return defaultPhases
	}

	var phases []rollout.Phase
	for _, spec := range strings.Split(value, ";") {
		parts := strings.Split(spec, "|")
		if len(parts) != 3 {
			continue
		}
		regions := strings.Split(parts[0], ",")
		delay, err := time.ParseDuration(parts[1])
		if err != nil {
			continue
		}
		ratio, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}
		phases = append(phases, rollout.Phase{Regions: regions, Delay: delay, MinSuccessRatio: ratio})
	}
	if len(phases) == 0 {
		return defaultPhases
	}
	return phases
}

// parsePinningProviders parses a compact provider list of the form
// "id|endpoint|region1,region2|perGBcost|freeTierGB;id2|..." An empty value
// yields no providers, which is valid for a local run that only writes
// artifacts to disk and never replicates them.
func parsePinningProviders(value string) []ProviderSpec {
	if value == "" {
		return nil
	}

	var specs []ProviderSpec
	for _, entry := range strings.Split(value, ";") {
		parts := strings.Split(entry, "|")
		if len(parts) != 5 {
			continue
		}
		cost, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			continue
		}
		freeTier, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			continue
		}
		specs = append(specs, ProviderSpec{
			ID:           parts[0],
			Endpoint:     parts[1],
			Regions:      strings.Split(parts[2], ","),
			PerGBCostUSD: cost,
			FreeTierGB:   freeTier,
		})
	}
	return specs
}

// parseGateways parses a compact gateway list of the form
// "name|region|priority|isGlobalPublic|baseURL;name2|..."
func parseGateways(value string) []GatewaySpec {
	if value == "" {
		return nil
	}

	var specs []GatewaySpec
	for _, entry := range strings.Split(value, ";") {
		parts := strings.Split(entry, "|")
		if len(parts) != 5 {
			continue
		}
		priority, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		isGlobal, err := strconv.ParseBool(parts[3])
		if err != nil {
			continue
		}
		specs = append(specs, GatewaySpec{
			Name:           parts[0],
			Region:         parts[1],
			Priority:       priority,
			IsGlobalPublic: isGlobal,
			BaseURL:        parts[4],
		})
	}
	return specs
}

// parseRegionAdjacency parses "region1:neighbor1,neighbor2;region2:..." into
// an ordered-by-appearance adjacency map.
func parseRegionAdjacency(value string) map[string][]string {
	if value == "" {
		return nil
	}

	adjacency := make(map[string][]string)
	for _, entry := range strings.Split(value, ";") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		adjacency[parts[0]] = strings.Split(parts[1], ",")
	}
	return adjacency
}
