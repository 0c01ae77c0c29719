// Copyright 2025 Certen Protocol
//
// Optional Firestore sink for pipeline events, for dashboards that want
// real-time run progress without polling the run-report server. Disabled
// by default; when disabled every Write is a no-op.

package eventstream

import (
	"context"
	"fmt"
	"log"
	"os"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirestoreSinkConfig configures a FirestoreSink.
type FirestoreSinkConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string // defaults to "pipelineRuns"
	Enabled         bool
	Logger          *log.Logger
}

// FirestoreSink writes events as documents under
// /{Collection}/{runID}/events/{eventHash}.
type FirestoreSink struct {
	client     *gcpfirestore.Client
	collection string
	enabled    bool
	logger     *log.Logger
}

// NewFirestoreSink builds a sink from cfg. If cfg.Enabled is false the
// returned sink performs no network calls and Write always succeeds.
func NewFirestoreSink(ctx context.Context, cfg FirestoreSinkConfig) (*FirestoreSink, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[eventstream-firestore] ", log.LstdFlags)
	}
	if cfg.Collection == "" {
		cfg.Collection = "pipelineRuns"
	}

	sink := &FirestoreSink{collection: cfg.Collection, logger: cfg.Logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		cfg.Logger.Println("Firestore event sink is DISABLED - running in no-op mode")
		return sink, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required when the Firestore sink is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	sink.client = client
	cfg.Logger.Printf("Firestore event sink initialized for project: %s", cfg.ProjectID)
	return sink, nil
}

// Write implements Sink.
func (s *FirestoreSink) Write(ctx context.Context, e Event) error {
	if !s.enabled {
		return nil
	}
	doc := s.client.Collection(s.collection).Doc(e.RunID).Collection("events").Doc(e.EventHash)
	_, err := doc.Set(ctx, e)
	return err
}

// Close releases the underlying Firestore client, if any.
func (s *FirestoreSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
