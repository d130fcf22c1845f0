// Package collect turns raw directory search results into admitted,
// baseline-scored listings ready for enrichment.
package collect

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/places"
)

// Config holds collection tunables.
type Config struct {
	MaxListings int `yaml:"max_listings" mapstructure:"max_listings"`
	PageSize    int `yaml:"page_size" mapstructure:"page_size"`
	MinReviews  int `yaml:"min_reviews" mapstructure:"min_reviews"`
}

// Stats counts what happened to every fetched result.
type Stats struct {
	Fetched       int
	Admitted      int
	NoWebsite     int
	LowReviews    int
	Closed        int
	Duplicates    int
	Malformed     int
}

// Collector fetches and filters business listings from the directory source.
type Collector struct {
	places places.Client
	cfg    Config
}

// New creates a Collector.
func New(client places.Client, cfg Config) *Collector {
	if cfg.MaxListings <= 0 {
		cfg.MaxListings = 60
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Collector{places: client, cfg: cfg}
}

// Collect runs a paginated text search and returns admitted listings in
// source order. A failure on the first page is a source failure and
// propagates; a failure on a later page keeps what was already fetched.
func (c *Collector) Collect(ctx context.Context, query string) ([]model.Listing, *Stats, error) {
	stats := &Stats{}
	seen := make(map[string]bool)
	seenNames := make(map[string]bool)
	var out []model.Listing

	pageToken := ""
	for len(out) < c.cfg.MaxListings {
		resp, err := c.places.TextSearch(ctx, places.TextSearchRequest{
			Query:     query,
			PageSize:  c.cfg.PageSize,
			PageToken: pageToken,
		})
		if err != nil {
			if stats.Fetched == 0 {
				return nil, nil, eris.Wrap(err, "collect: text search")
			}
			zap.L().Warn("search page failed, keeping partial results",
				zap.String("query", query),
				zap.Int("fetched", stats.Fetched),
				zap.Error(err),
			)
			break
		}

		for _, p := range resp.Places {
			if len(out) >= c.cfg.MaxListings {
				break
			}
			stats.Fetched++

			listing, ok := c.admit(p, seen, seenNames, stats)
			if !ok {
				continue
			}
			stats.Admitted++
			out = append(out, listing)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	zap.L().Info("collection complete",
		zap.String("query", query),
		zap.Int("fetched", stats.Fetched),
		zap.Int("admitted", stats.Admitted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("filtered_no_website", stats.NoWebsite),
		zap.Int("filtered_low_reviews", stats.LowReviews),
		zap.Int("filtered_closed", stats.Closed),
		zap.Int("malformed", stats.Malformed),
	)
	return out, stats, nil
}

// admit applies the admission filters to one raw place.
func (c *Collector) admit(p places.Place, seen, seenNames map[string]bool, stats *Stats) (model.Listing, bool) {
	var zero model.Listing

	if p.ID == "" || p.DisplayName.Text == "" {
		stats.Malformed++
		return zero, false
	}
	if seen[p.ID] {
		stats.Duplicates++
		zap.L().Debug("duplicate place dropped", zap.String("place_id", p.ID))
		return zero, false
	}
	seen[p.ID] = true

	// Same practice can appear under distinct place IDs when the source
	// carries stale duplicates. Normalized name+address is the tiebreaker.
	nameKey := normalizeKey(p.DisplayName.Text + "|" + p.FormattedAddress)
	if seenNames[nameKey] {
		stats.Duplicates++
		zap.L().Debug("duplicate practice dropped",
			zap.String("place_id", p.ID),
			zap.String("name", p.DisplayName.Text),
		)
		return zero, false
	}
	seenNames[nameKey] = true

	if p.BusinessStatus == "CLOSED_PERMANENTLY" {
		stats.Closed++
		return zero, false
	}
	if p.WebsiteURI == "" {
		stats.NoWebsite++
		return zero, false
	}
	if p.UserRatingCount < c.cfg.MinReviews {
		stats.LowReviews++
		return zero, false
	}

	return model.Listing{
		PlaceID:       p.ID,
		Name:          p.DisplayName.Text,
		Address:       p.FormattedAddress,
		Phone:         p.NationalPhoneNumber,
		Website:       p.WebsiteURI,
		Rating:        p.Rating,
		ReviewCount:   p.UserRatingCount,
		Categories:    p.Types,
		ReviewSnips:   reviewSnippets(p.Reviews, 5),
		BaselineScore: BaselineScore(p.UserRatingCount, p.Rating),
		Admitted:      true,
	}, true
}

// BaselineScore rates a listing 0-25 from directory data alone: review
// volume (0-15) and rating (0-10) in fixed tiers.
func BaselineScore(reviewCount int, rating float64) int {
	score := 0

	switch {
	case reviewCount >= 150:
		score += 15
	case reviewCount >= 50:
		score += 10
	case reviewCount > 0:
		score += 5
	}

	switch {
	case rating >= 4.5:
		score += 10
	case rating >= 4.0:
		score += 6
	case rating >= 3.5:
		score += 3
	}

	return score
}

// reviewSnippets keeps up to max non-empty review bodies for sentiment
// analysis downstream.
func reviewSnippets(reviews []places.Review, max int) []string {
	var out []string
	for _, r := range reviews {
		text := strings.TrimSpace(r.Text.Text)
		if text == "" {
			continue
		}
		out = append(out, text)
		if len(out) >= max {
			break
		}
	}
	return out
}

var foldCaser = cases.Fold()

// normalizeKey canonicalizes a name for duplicate detection: Unicode
// normalization, case folding, and whitespace collapse.
func normalizeKey(s string) string {
	s = norm.NFKC.String(s)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}
