// Package store persists verification runs and a fetched-source cache
// behind a backend-agnostic interface with SQLite and Postgres
// implementations.
package store

import (
	"context"
	"time"

	"github.com/factharbor/verify-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, inputText string, variant model.PipelineVariant) (*model.VerificationRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.AnalysisResult) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.VerificationRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.VerificationRun, error)

	// Source cache. Keyed by URL; a miss or an expired entry returns nil
	// without error.
	GetCachedSource(ctx context.Context, url string) (*model.FetchedSource, error)
	SetCachedSource(ctx context.Context, source model.FetchedSource, ttl time.Duration) error
	DeleteExpiredSources(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
