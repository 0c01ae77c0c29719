// Copyright 2025 Certen Protocol
//
// cmd/pipeline-status is the read-only introspection server: it serves the
// active snapshot pointer, run reports, and on-demand Merkle inclusion
// proofs over HTTP, reconstructing proofs from persisted leaf hashes
// without ever touching the offline pipeline itself.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geomesh/boundary-commit/pkg/config"
	"github.com/geomesh/boundary-commit/pkg/database"
	"github.com/geomesh/boundary-commit/pkg/server"
)

func main() {
	logger := log.New(os.Stdout, "[pipeline-status] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatalf("DATABASE_URL is required for the introspection server")
	}

	dbClient, err := database.NewClient(cfg)
	if err != nil {
		logger.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Close()
	repos := database.NewRepositories(dbClient)

	mux := server.NewMux(repos, logger)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if health, err := dbClient.Health(ctx); err != nil || !health.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		logger.Printf("pipeline-status listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
