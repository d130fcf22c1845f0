// Package pipeline ties the run together: collect listings, enrich them
// under the spend ceiling, score the results, and sync leads to Notion.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/collect"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/score"
	"github.com/sells-group/leadgen-cli/internal/store"
	syncpkg "github.com/sells-group/leadgen-cli/internal/sync"
)

// Collector produces admitted listings for a search query.
type Collector interface {
	Collect(ctx context.Context, query string) ([]model.Listing, *collect.Stats, error)
}

// Enricher runs the crawl/extract stages for a batch of listings.
type Enricher interface {
	EnrichBatch(ctx context.Context, listings []model.Listing) []model.EnrichmentRecord
}

// Syncer pushes scored leads to the external record store.
type Syncer interface {
	UpsertBatch(ctx context.Context, leads []model.Lead) (model.SyncOutcome, error)
}

// Pipeline executes one full lead-generation run.
type Pipeline struct {
	store     store.Store
	collector Collector
	enricher  Enricher
	syncer    Syncer
	tracker   *cost.Tracker
	weights   score.Weights
}

func New(st store.Store, collector Collector, enricher Enricher, syncer Syncer, tracker *cost.Tracker, weights score.Weights) *Pipeline {
	return &Pipeline{
		store:     st,
		collector: collector,
		enricher:  enricher,
		syncer:    syncer,
		tracker:   tracker,
		weights:   weights,
	}
}

// Run executes collect, enrich, score, and sync for one query and persists
// the run record. Collection failure fails the run; everything after
// degrades per listing.
func (p *Pipeline) Run(ctx context.Context, query string) (*model.Run, error) {
	start := time.Now()

	run, err := p.store.CreateRun(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("query", query))
	log.Info("pipeline: run started", zap.Float64("budget_usd", p.tracker.Summary().CeilingUSD))

	listings, stats, err := p.collector.Collect(ctx, query)
	if err != nil {
		p.failRun(ctx, run, err)
		return run, eris.Wrap(err, "pipeline: collect")
	}
	log.Info("pipeline: listings collected",
		zap.Int("fetched", stats.Fetched),
		zap.Int("admitted", len(listings)),
	)

	records := p.enricher.EnrichBatch(ctx, listings)

	leads := p.scoreRecords(records)
	if err := p.store.SaveLeads(ctx, run.ID, leads); err != nil {
		// Leads still sync; losing the local snapshot is not fatal.
		log.Warn("pipeline: save leads failed", zap.Error(err))
	}

	outcome, err := p.syncer.UpsertBatch(ctx, leads)
	if err != nil {
		p.failRun(ctx, run, err)
		return run, eris.Wrap(err, "pipeline: sync")
	}

	summary := p.buildSummary(stats, records, leads, outcome, time.Since(start))
	status := model.RunStatusComplete
	if p.tracker.Halted() {
		status = model.RunStatusHalted
	}

	if err := p.store.CompleteRun(ctx, run.ID, status, summary); err != nil {
		return run, eris.Wrap(err, "pipeline: complete run")
	}
	run.Status = status
	run.Summary = summary

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Float64("spend_usd", summary.SpendUSD),
		zap.Int("synced", outcome.Created+outcome.Updated),
	)
	return run, nil
}

// scoreRecords scores every terminal record. Pending records were skipped
// by a budget halt and are neither scored nor synced.
func (p *Pipeline) scoreRecords(records []model.EnrichmentRecord) []model.Lead {
	leads := make([]model.Lead, 0, len(records))
	for i := range records {
		rec := records[i]
		if !rec.Terminal() || rec.Status == model.StatusFailed {
			continue
		}
		leads = append(leads, model.Lead{
			Record: rec,
			Score:  score.Score(rec, p.weights),
		})
	}
	return leads
}

func (p *Pipeline) buildSummary(stats *collect.Stats, records []model.EnrichmentRecord, leads []model.Lead, outcome model.SyncOutcome, elapsed time.Duration) *model.Summary {
	counts := enrich.CountByStatus(records)
	spend := p.tracker.Summary()

	tiers := make(map[model.Tier]int)
	for _, lead := range leads {
		tiers[lead.Score.Tier]++
	}

	return &model.Summary{
		Collected:      stats.Fetched,
		Admitted:       stats.Admitted,
		Enriched:       counts[model.StatusSuccess],
		Partial:        counts[model.StatusPartial],
		Failed:         counts[model.StatusFailed],
		Pending:        counts[model.StatusPending],
		SpendUSD:       spend.SpentUSD,
		BudgetUSD:      spend.CeilingUSD,
		TotalTokensIn:  spend.TokensIn,
		TotalTokensOut: spend.TokensOut,
		LLMCalls:       spend.Calls,
		Tiers:          tiers,
		StageFailures:  spend.Failures,
		Sync:           outcome,
		DurationMS:     elapsed.Milliseconds(),
	}
}

func (p *Pipeline) failRun(ctx context.Context, run *model.Run, cause error) {
	zap.L().Error("pipeline: run failed", zap.String("run_id", run.ID), zap.Error(cause))
	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed); err != nil {
		zap.L().Warn("pipeline: mark run failed", zap.Error(err))
	}
	run.Status = model.RunStatusFailed
}

var _ Syncer = (*syncpkg.Syncer)(nil)
