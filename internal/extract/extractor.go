// Package extract turns crawled site content into structured practice
// fields via budget-gated LLM calls.
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// Config holds extraction tunables.
type Config struct {
	Model           string `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int64  `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 1024
	}
	return c
}

// Extractor runs schema-validated extraction calls under the spend ceiling.
type Extractor struct {
	ai      anthropic.Client
	tracker *cost.Tracker
	cfg     Config
}

// New creates an Extractor.
func New(ai anthropic.Client, tracker *cost.Tracker, cfg Config) *Extractor {
	return &Extractor{ai: ai, tracker: tracker, cfg: cfg.withDefaults()}
}

// Extract pulls structured fields for one listing. Failure modes are
// distinguishable by type: cost.ErrBudgetExceeded (no call was made),
// *SchemaError (two invalid outputs, raw preserved), *CallError (API
// failure).
func (e *Extractor) Extract(ctx context.Context, listing model.Listing, site *model.SiteContent) (*model.Extraction, error) {
	prompt := BuildPrompt(listing, site)

	ext, raw, err := e.callAndParse(ctx, prompt, "extract")
	if err == nil {
		return ext, nil
	}

	var se *SchemaError
	if !errors.As(err, &se) {
		return nil, err
	}

	// One reformulation retry on schema-invalid output; tokens were spent
	// either way, so both calls are committed against the budget.
	zap.L().Warn("extraction output failed schema, retrying once",
		zap.String("place_id", listing.PlaceID),
		zap.Strings("reasons", se.Reasons),
	)
	retryPrompt := prompt + "\n\n" + fmt.Sprintf(reformatPrompt, se.Error())
	ext, raw, err = e.callAndParse(ctx, retryPrompt, "extract_retry")
	if err == nil {
		return ext, nil
	}
	if errors.As(err, &se) {
		zap.L().Warn("extraction failed schema twice",
			zap.String("place_id", listing.PlaceID),
			zap.Int("raw_len", len(raw)),
		)
	}
	return nil, err
}

// AnalyzeReviews produces an optional sentiment summary from review
// snippets. Errors are returned for logging but never fail a listing.
func (e *Extractor) AnalyzeReviews(ctx context.Context, listing model.Listing) (*model.ReviewInsights, error) {
	if len(listing.ReviewSnips) == 0 {
		return nil, nil
	}

	prompt := buildReviewPrompt(listing)
	estimate := e.tracker.EstimateCall(len(systemPrompt)+len(prompt), int(e.cfg.MaxOutputTokens))
	res, err := e.tracker.Begin(estimate)
	if err != nil {
		return nil, err
	}

	resp, err := e.ai.CreateMessage(ctx, e.request(prompt))
	if err != nil {
		res.Release()
		e.tracker.RecordFailure("review_sentiment")
		return nil, &CallError{Err: err}
	}
	e.commit(res, resp, "review_sentiment")

	insights, err := parseReviewInsights(resp.Text())
	if err != nil {
		e.tracker.RecordFailure("review_sentiment")
		return nil, err
	}
	return insights, nil
}

// callAndParse makes one budget-gated LLM call and validates the output.
func (e *Extractor) callAndParse(ctx context.Context, prompt, stage string) (*model.Extraction, string, error) {
	estimate := e.tracker.EstimateCall(len(systemPrompt)+len(prompt), int(e.cfg.MaxOutputTokens))
	res, err := e.tracker.Begin(estimate)
	if err != nil {
		return nil, "", err
	}

	resp, err := e.ai.CreateMessage(ctx, e.request(prompt))
	if err != nil {
		res.Release()
		e.tracker.RecordFailure(stage)
		return nil, "", &CallError{Err: err}
	}
	e.commit(res, resp, stage)

	raw := resp.Text()
	ext, err := ParseExtraction(raw)
	if err != nil {
		e.tracker.RecordFailure(stage)
		return nil, raw, err
	}
	return ext, raw, nil
}

func (e *Extractor) request(prompt string) anthropic.MessageRequest {
	temp := 0.0
	return anthropic.MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxOutputTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
}

func (e *Extractor) commit(res *cost.Reservation, resp *anthropic.MessageResponse, stage string) {
	actual := resp.Usage.EstimateCost(e.cfg.Model)
	res.Commit(actual, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	resp.Usage.LogCost(e.cfg.Model, stage)
}
