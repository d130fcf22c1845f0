// Package enrich coordinates the per-listing pipeline: crawl the practice
// website, extract structured facts, and analyze review sentiment. Listings
// are processed concurrently under a bounded worker count; once the spend
// ceiling is hit, no new listing starts while in-flight work completes.
package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// SiteFetcher crawls one website into structured page content.
type SiteFetcher interface {
	FetchSite(ctx context.Context, rawURL string) (*model.SiteContent, error)
}

// Extractor turns crawled content and review snippets into structured fields.
type Extractor interface {
	Extract(ctx context.Context, listing model.Listing, site *model.SiteContent) (*model.Extraction, error)
	AnalyzeReviews(ctx context.Context, listing model.Listing) (*model.ReviewInsights, error)
}

// Budget reports the spend tracker's halt state and collects stage failures.
type Budget interface {
	Halted() bool
	RecordFailure(stage string)
}

// Config holds orchestrator settings.
type Config struct {
	// Concurrency bounds simultaneous listing enrichments. Default: 4.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Orchestrator runs the enrichment stages for a batch of listings.
type Orchestrator struct {
	crawler   SiteFetcher
	extractor Extractor
	budget    Budget
	cfg       Config
}

func New(crawler SiteFetcher, extractor Extractor, budget Budget, cfg Config) *Orchestrator {
	return &Orchestrator{
		crawler:   crawler,
		extractor: extractor,
		budget:    budget,
		cfg:       cfg.withDefaults(),
	}
}

// EnrichBatch processes all listings and returns one record per listing, in
// input order. Per-listing failures degrade that record; they never abort
// the batch. Records left at StatusPending were skipped by a budget halt.
func (o *Orchestrator) EnrichBatch(ctx context.Context, listings []model.Listing) []model.EnrichmentRecord {
	records := make([]model.EnrichmentRecord, len(listings))
	for i, l := range listings {
		records[i] = model.EnrichmentRecord{Listing: l, Status: model.StatusPending}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i := range records {
		g.Go(func() error {
			if gCtx.Err() != nil || o.budget.Halted() {
				return nil
			}
			o.enrichOne(gCtx, &records[i])
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return records
}

func (o *Orchestrator) enrichOne(ctx context.Context, rec *model.EnrichmentRecord) {
	listing := rec.Listing
	log := zap.L().With(
		zap.String("place_id", listing.PlaceID),
		zap.String("name", listing.Name),
	)

	rec.Status = model.StatusCrawling
	site, err := o.crawler.FetchSite(ctx, listing.Website)
	if err != nil {
		o.budget.RecordFailure("crawl")
		o.finish(rec, model.StatusFailed, "crawl: "+err.Error())
		log.Warn("enrich: crawl failed", zap.Error(err))
		return
	}
	rec.Site = site

	rec.Status = model.StatusExtracting
	ext, err := o.extractor.Extract(ctx, listing, site)
	switch {
	case err == nil:
		rec.Extraction = ext
	case errors.Is(err, cost.ErrBudgetExceeded):
		// The crawl is already paid for; the listing proceeds to scoring
		// and sync with listing-only data. Un-started listings stay
		// pending via the Halted check.
		o.finish(rec, model.StatusPartial, "extract: budget ceiling reached")
		log.Info("enrich: extraction blocked by budget ceiling, keeping listing-only record")
		return
	default:
		var se *extract.SchemaError
		note := "extract: " + err.Error()
		if errors.As(err, &se) {
			note = "extract: schema-invalid output"
		}
		o.finish(rec, model.StatusPartial, note)
		log.Warn("enrich: extraction failed, keeping listing-only record", zap.Error(err))
		return
	}

	// Review sentiment is a best-effort supplement.
	if insights, err := o.extractor.AnalyzeReviews(ctx, listing); err != nil {
		log.Warn("enrich: review analysis failed", zap.Error(err))
	} else {
		rec.ReviewInsights = insights
	}

	o.finish(rec, model.StatusSuccess, "")
	log.Info("enrich: listing enriched",
		zap.String("confidence", string(rec.Extraction.Confidence)),
	)
}

func (o *Orchestrator) finish(rec *model.EnrichmentRecord, status model.RecordStatus, note string) {
	rec.Status = status
	rec.ErrorNote = note
	if status != model.StatusPending {
		rec.EnrichedAt = time.Now().UTC()
	}
}

// CountByStatus tallies records for the run summary.
func CountByStatus(records []model.EnrichmentRecord) map[model.RecordStatus]int {
	counts := make(map[model.RecordStatus]int)
	for i := range records {
		counts[records[i].Status]++
	}
	return counts
}
