// Copyright 2025 Certen Protocol
//
// cmd/resolver is the long-running companion process: it continuously
// probes every configured gateway (C12), and serves content-address
// lookups through the tiered fallback resolver (C13), backing off away
// from gateways the monitor has marked unavailable or that recently failed.
// It does not run the offline C1-C9 pipeline or C10/C11 publication; those
// belong to cmd/pipeline.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geomesh/boundary-commit/pkg/config"
	"github.com/geomesh/boundary-commit/pkg/monitor"
	"github.com/geomesh/boundary-commit/pkg/resolver"
)

func main() {
	logger := log.New(os.Stdout, "[resolver] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if len(cfg.Gateways) == 0 {
		logger.Fatalf("no gateways configured, nothing to monitor or resolve through")
	}

	registry := prometheus.NewRegistry()
	mon := monitor.New(&httpProber{client: http.Client{Timeout: 10 * time.Second}}, registry,
		monitor.WithInterval(cfg.HealthcheckInterval))

	gateways := make([]resolver.Gateway, len(cfg.Gateways))
	canaryURLs := make(map[string]string, len(cfg.Gateways))
	baseURLs := make(map[string]string, len(cfg.Gateways))
	for i, g := range cfg.Gateways {
		gateways[i] = resolver.Gateway{Name: g.Name, Region: g.Region, Priority: g.Priority, IsGlobalPublic: g.IsGlobalPublic}
		canaryURLs[g.Name] = g.BaseURL + "/health"
		baseURLs[g.Name] = g.BaseURL
	}

	res := resolver.New(resolver.Config{
		Gateways:        gateways,
		Adjacency:       resolver.RegionAdjacency(cfg.RegionAdjacency),
		Health:          &monitorHealthAdapter{monitor: mon},
		Fetcher:         &httpFetcher{baseURLs: baseURLs, client: http.Client{Timeout: 30 * time.Second}},
		SuccessCacheTTL: cfg.ResolverCacheTTL,
		FailureCacheTTL: cfg.ResolverFailureWindow,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go mon.Run(ctx, canaryURLs)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/resolve/", func(w http.ResponseWriter, r *http.Request) {
		handleResolve(w, r, res, logger)
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		logger.Printf("resolver listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func handleResolve(w http.ResponseWriter, r *http.Request, res *resolver.Resolver, logger *log.Logger) {
	contentAddress := r.URL.Path[len("/resolve/"):]
	if contentAddress == "" {
		http.Error(w, "content address is required", http.StatusBadRequest)
		return
	}
	userRegion := r.URL.Query().Get("region")

	data, result, err := res.Resolve(r.Context(), contentAddress, userRegion)
	if err != nil {
		logger.Printf("resolve %s: %v", contentAddress, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error(), "result": result})
		return
	}

	w.Header().Set("X-Gateway-Used", result.GatewayUsed)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// httpProber implements monitor.Prober with a bounded-timeout GET.
type httpProber struct {
	client http.Client
}

func (p *httpProber) Probe(ctx context.Context, gatewayURL string) (bool, time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL, nil)
	if err != nil {
		return false, 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, time.Since(start), err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	latency := time.Since(start)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, latency, nil
}

// httpFetcher implements resolver.Fetcher by GETting the content address
// from the gateway's base URL.
type httpFetcher struct {
	baseURLs map[string]string
	client   http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, gateway, contentAddress string) ([]byte, error) {
	base, ok := f.baseURLs[gateway]
	if !ok {
		base = gateway
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/cid/"+contentAddress, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fetchError{gateway: gateway, status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type fetchError struct {
	gateway string
	status  int
}

func (e *fetchError) Error() string {
	return e.gateway + ": unexpected status " + http.StatusText(e.status)
}

// monitorHealthAdapter implements resolver.HealthProvider over a
// *monitor.Monitor, decoupling the resolver from the monitor's own probing
// and rolling-window machinery.
type monitorHealthAdapter struct {
	monitor *monitor.Monitor
}

func (a *monitorHealthAdapter) IsAvailable(gateway string) bool {
	health, ok := a.monitor.Health(gateway)
	if !ok {
		return true
	}
	return health.Available
}

func (a *monitorHealthAdapter) P50Latency(gateway string) time.Duration {
	health, ok := a.monitor.Health(gateway)
	if !ok {
		return 0
	}
	return health.P50Latency
}
