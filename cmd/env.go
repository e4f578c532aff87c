package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/health"
	"github.com/factharbor/verify-cli/internal/pipeline"
	"github.com/factharbor/verify-cli/internal/store"
	anthropicpkg "github.com/factharbor/verify-cli/pkg/anthropic"
	"github.com/factharbor/verify-cli/pkg/perplexity"
)

// pipelineEnv holds the initialized store, clients, health tracker, and
// pipeline shared by the verify/serve/worker commands.
type pipelineEnv struct {
	Store    store.Store
	Health   *health.Tracker
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, API clients, and health tracker, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model))

	var notifier health.Notifier
	if cfg.Health.WebhookURL != "" {
		notifier = health.NewWebhookNotifier(cfg.Health.WebhookURL)
		zap.L().Info("health webhook notifications enabled")
	}
	tracker := health.NewTracker(health.Config{
		FailureThreshold: cfg.Health.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Health.ResetTimeoutSecs) * time.Second,
	}, notifier)

	p := pipeline.New(cfg, st, anthropicClient, perplexityClient, tracker)

	return &pipelineEnv{Store: st, Health: tracker, Pipeline: p}, nil
}
