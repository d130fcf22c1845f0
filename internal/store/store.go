package store

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Query  string          `json:"query,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline. It also
// satisfies crawl.SiteCache and sync.StateStore.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, query string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.Summary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Leads
	SaveLeads(ctx context.Context, runID string, leads []model.Lead) error
	ListLeads(ctx context.Context, runID string) ([]model.Lead, error)

	// Site cache
	GetSite(ctx context.Context, url string) (*model.SiteContent, error)
	PutSite(ctx context.Context, url string, site *model.SiteContent, ttl time.Duration) error
	DeleteExpiredSites(ctx context.Context) (int, error)

	// Sync state
	GetSyncState(ctx context.Context, externalID string) (*model.SyncState, error)
	PutSyncState(ctx context.Context, state model.SyncState) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
