package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/collect"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/crawl"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/score"
	syncpkg "github.com/sells-group/leadgen-cli/internal/sync"
	anthropicpkg "github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/notion"
	"github.com/sells-group/leadgen-cli/pkg/places"
)

var (
	runQuery  string
	runBudget float64
	runMax    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lead pipeline for one search query",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(); err != nil {
			return err
		}
		if runBudget > 0 {
			cfg.Budget.CeilingUSD = runBudget
		}
		if runMax > 0 {
			cfg.Collect.MaxListings = runMax
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		// Clients
		placesClient := places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
		aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		notionClient := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))

		// Spend tracking
		rates := cost.DefaultRates()
		for name, mp := range cfg.Pricing.Anthropic {
			rates.Anthropic[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
		}
		tracker := cost.NewTracker(cost.NewCalculator(rates), cfg.Anthropic.Model, cfg.Budget.CeilingUSD)

		// Shared resilience: one retry policy, per-service breakers.
		retry := resilience.PolicyFromConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		)
		breakerCfg := resilience.BreakerFromConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs)
		breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		breakers := resilience.NewServiceBreakers(breakerCfg)

		// Stages
		collector := collect.New(placesClient, collect.Config{
			MaxListings: cfg.Collect.MaxListings,
			PageSize:    cfg.Places.PageSize,
			MinReviews:  cfg.Collect.MinReviews,
		})

		fetcher := crawl.NewHTTPFetcher(time.Duration(cfg.Crawl.TimeoutSecs) * time.Second)
		crawler := crawl.New(fetcher, st, retry, crawl.Config{
			MaxPages:      cfg.Crawl.MaxPages,
			Concurrency:   cfg.Crawl.Concurrency,
			CacheTTL:      time.Duration(cfg.Crawl.CacheTTLHours) * time.Hour,
			PageCharLimit: cfg.Crawl.PageCharLimit,
			Breaker:       breakers.Get("crawl"),
		})

		extractor := extract.New(aiClient, tracker, extract.Config{
			Model:           cfg.Anthropic.Model,
			MaxOutputTokens: cfg.Anthropic.MaxOutputTokens,
		})

		enricher := enrich.New(crawler, extractor, tracker, enrich.Config{
			Concurrency: cfg.Enrich.Concurrency,
		})

		weights, err := score.LoadWeights(cfg.Score.WeightsPath)
		if err != nil {
			return eris.Wrap(err, "load scoring weights")
		}

		syncer := syncpkg.New(notionClient, st, retry, syncpkg.Config{
			DatabaseID:         cfg.Notion.LeadDB,
			ExternalIDProperty: cfg.Notion.ExternalIDProperty,
			Breaker:            breakers.Get("notion"),
		})

		p := pipeline.New(st, collector, enricher, syncer, tracker, weights)

		run, err := p.Run(ctx, runQuery)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
		)

		// Print summary JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", `search query, e.g. "veterinarian in Austin, TX" (required)`)
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "override the LLM spend ceiling in USD")
	runCmd.Flags().IntVar(&runMax, "max-listings", 0, "override the listing cap")
	_ = runCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(runCmd)
}
