// Package sync pushes scored leads into the Notion leads database. Upserts
// are idempotent: each lead is fingerprinted, matched against the stored
// sync state, and skipped when nothing the pipeline owns has changed.
package sync

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// StateStore persists per-lead sync fingerprints between runs.
type StateStore interface {
	GetSyncState(ctx context.Context, externalID string) (*model.SyncState, error)
	PutSyncState(ctx context.Context, state model.SyncState) error
}

// Config holds sync targets.
type Config struct {
	// DatabaseID is the Notion leads database.
	DatabaseID string

	// ExternalIDProperty is the rich-text property holding the place ID.
	// Defaults to "Place ID".
	ExternalIDProperty string

	// Breaker, if set, sheds API calls while Notion is unhealthy.
	Breaker *resilience.Breaker
}

func (c Config) withDefaults() Config {
	if c.ExternalIDProperty == "" {
		c.ExternalIDProperty = PropPlaceID
	}
	return c
}

// Client is the subset of the Notion wrapper the syncer needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Syncer upserts leads into Notion one at a time. The wrapped client already
// rate-limits requests, so no extra concurrency is used here.
type Syncer struct {
	client  Client
	states  StateStore
	retry   resilience.Policy
	breaker *resilience.Breaker // optional
	cfg     Config
}

// New creates a Syncer. states may be nil, in which case every lead is
// looked up remotely and no fingerprints are persisted.
func New(client Client, states StateStore, retry resilience.Policy, cfg Config) *Syncer {
	return &Syncer{
		client:  client,
		states:  states,
		retry:   retry,
		breaker: cfg.Breaker,
		cfg:     cfg.withDefaults(),
	}
}

// call runs one retried API call through the circuit breaker, if any.
func call[T any](ctx context.Context, s *Syncer, fn func(ctx context.Context) (T, error)) (T, error) {
	do := func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, s.retry, fn)
	}
	if s.breaker == nil {
		return do(ctx)
	}
	return resilience.ExecuteVal(ctx, s.breaker, do)
}

// UpsertBatch syncs each lead and returns per-record outcome counts. A
// failed record is counted and logged, never fatal; only context
// cancellation aborts the batch.
func (s *Syncer) UpsertBatch(ctx context.Context, leads []model.Lead) (model.SyncOutcome, error) {
	var out model.SyncOutcome

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "sync: batch aborted")
		}

		res, err := s.upsert(ctx, lead)
		if err != nil {
			out.Failed++
			zap.L().Warn("sync: lead upsert failed",
				zap.String("place_id", lead.Record.Listing.PlaceID),
				zap.String("name", lead.Record.Listing.Name),
				zap.Error(err),
			)
			continue
		}
		switch res {
		case resultCreated:
			out.Created++
		case resultUpdated:
			out.Updated++
		case resultSkipped:
			out.Skipped++
		}
	}

	zap.L().Info("sync: batch complete",
		zap.Int("created", out.Created),
		zap.Int("updated", out.Updated),
		zap.Int("skipped", out.Skipped),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

type upsertResult int

const (
	resultCreated upsertResult = iota
	resultUpdated
	resultSkipped
)

func (s *Syncer) upsert(ctx context.Context, lead model.Lead) (upsertResult, error) {
	externalID := lead.Record.Listing.PlaceID
	hash := PayloadHash(lead)

	var state *model.SyncState
	if s.states != nil {
		var err error
		state, err = s.states.GetSyncState(ctx, externalID)
		if err != nil {
			// A broken state read degrades to a remote lookup.
			zap.L().Warn("sync: state lookup failed",
				zap.String("place_id", externalID),
				zap.Error(err),
			)
			state = nil
		}
	}

	if state != nil && state.PayloadHash == hash {
		return resultSkipped, nil
	}

	remoteID, err := s.resolveRemoteID(ctx, externalID, state)
	if err != nil {
		return 0, err
	}

	props := BuildProperties(lead)

	if remoteID == "" {
		page, err := call(ctx, s, func(ctx context.Context) (*notionapi.Page, error) {
			return s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent: notionapi.Parent{
					Type:       notionapi.ParentTypeDatabaseID,
					DatabaseID: notionapi.DatabaseID(s.cfg.DatabaseID),
				},
				Properties: props,
			})
		})
		if err != nil {
			return 0, eris.Wrap(err, "sync: create page")
		}
		s.saveState(ctx, externalID, string(page.ID), hash)
		return resultCreated, nil
	}

	_, err = call(ctx, s, func(ctx context.Context) (*notionapi.Page, error) {
		return s.client.UpdatePage(ctx, remoteID, &notionapi.PageUpdateRequest{
			Properties: props,
		})
	})
	if err != nil {
		return 0, eris.Wrap(err, "sync: update page")
	}
	s.saveState(ctx, externalID, remoteID, hash)
	return resultUpdated, nil
}

// resolveRemoteID prefers the stored page ID and falls back to a remote
// query so pages created outside a tracked run are still matched.
func (s *Syncer) resolveRemoteID(ctx context.Context, externalID string, state *model.SyncState) (string, error) {
	if state != nil && state.RemoteID != "" {
		return state.RemoteID, nil
	}

	page, err := call(ctx, s, func(ctx context.Context) (*notionapi.Page, error) {
		return notion.FindByExternalID(ctx, s.client, s.cfg.DatabaseID, s.cfg.ExternalIDProperty, externalID)
	})
	if err != nil {
		return "", eris.Wrap(err, "sync: find existing page")
	}
	if page == nil {
		return "", nil
	}
	return string(page.ID), nil
}

func (s *Syncer) saveState(ctx context.Context, externalID, remoteID string, hash uint64) {
	if s.states == nil {
		return
	}
	err := s.states.PutSyncState(ctx, model.SyncState{
		ExternalID:  externalID,
		RemoteID:    remoteID,
		PayloadHash: hash,
		SyncedAt:    time.Now().UTC(),
	})
	if err != nil {
		zap.L().Warn("sync: persist state failed",
			zap.String("place_id", externalID),
			zap.Error(err),
		)
	}
}
