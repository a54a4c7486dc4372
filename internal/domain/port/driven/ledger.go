package driven

import (
	"context"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// RunStore defines the driven port for sync pass history.
type RunStore interface {
	// RecordRun persists the run summary and its per-file outcomes.
	RecordRun(ctx context.Context, run model.SyncRun, files []model.SyncRunFile) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// GetRun returns a run and its files. Returns (nil, nil, nil) if absent.
	GetRun(ctx context.Context, id string) (*model.SyncRun, []model.SyncRunFile, error)
}

// IncidentStore defines the driven port for per-issue lifecycle records used
// by the cleanup workflow. The sync planner never reads it.
type IncidentStore interface {
	// UpsertStatus records the latest known summary and status of an issue,
	// preserving its marked-for-deletion flag.
	UpsertStatus(ctx context.Context, incident model.Incident) error

	// Get returns the record for an issue. Returns (nil, nil) if absent.
	Get(ctx context.Context, issueKey string) (*model.Incident, error)

	// ListAll returns all records ordered by key.
	ListAll(ctx context.Context) ([]model.Incident, error)

	// SetMarked sets or clears the marked-for-deletion flag.
	SetMarked(ctx context.Context, issueKey string, marked bool) error

	// Delete removes the record for an issue.
	Delete(ctx context.Context, issueKey string) error
}
