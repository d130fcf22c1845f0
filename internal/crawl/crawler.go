// Package crawl fetches practice websites and renders them into plaintext
// site content for extraction.
package crawl

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/cache"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Config holds crawl tunables.
type Config struct {
	MaxPages      int           `yaml:"max_pages" mapstructure:"max_pages"`
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	PageCharLimit int           `yaml:"page_char_limit" mapstructure:"page_char_limit"`

	// Breaker, if set, sheds fetches while the network is unhealthy.
	Breaker *resilience.Breaker `yaml:"-" mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.PageCharLimit <= 0 {
		c.PageCharLimit = 20000
	}
	return c
}

// SiteCache persists crawled site content across runs. Implementations
// return nil content (no error) on a miss.
type SiteCache interface {
	GetSite(ctx context.Context, url string) (*model.SiteContent, error)
	PutSite(ctx context.Context, url string, site *model.SiteContent, ttl time.Duration) error
}

const memCacheSize = 256

// Crawler fetches a listing's website: homepage plus the highest-priority
// same-host pages, cached in memory and optionally in the store.
type Crawler struct {
	fetcher Fetcher
	mem     *cache.LRU[*model.SiteContent]
	store   SiteCache // optional
	retry   resilience.Policy
	breaker *resilience.Breaker // optional
	cfg     Config
}

// New creates a Crawler. store may be nil to disable cross-run caching.
func New(fetcher Fetcher, store SiteCache, retry resilience.Policy, cfg Config) *Crawler {
	return &Crawler{
		fetcher: fetcher,
		mem:     cache.NewLRU[*model.SiteContent](memCacheSize),
		store:   store,
		retry:   retry,
		breaker: cfg.Breaker,
		cfg:     cfg.withDefaults(),
	}
}

// fetch runs one retried page fetch through the circuit breaker, if any.
// When sites keep timing out in bulk the breaker fails the remaining
// fetches fast instead of burning the run's wall clock on retries.
func (c *Crawler) fetch(ctx context.Context, url string) (*FetchResult, error) {
	do := func(ctx context.Context) (*FetchResult, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*FetchResult, error) {
			return c.fetcher.Fetch(ctx, url)
		})
	}
	if c.breaker == nil {
		return do(ctx)
	}
	return resilience.ExecuteVal(ctx, c.breaker, do)
}

// FetchSite returns the rendered site content for rawURL. A homepage
// failure fails the site; subpage failures degrade to fewer pages.
func (c *Crawler) FetchSite(ctx context.Context, rawURL string) (*model.SiteContent, error) {
	siteURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("site", siteURL))

	if site, ok := c.mem.Get(siteURL); ok {
		log.Debug("site served from memory cache")
		return cachedCopy(site), nil
	}
	if c.store != nil {
		site, err := c.store.GetSite(ctx, siteURL)
		if err != nil {
			log.Warn("site cache lookup failed", zap.Error(err))
		} else if site != nil {
			c.mem.Put(siteURL, site, c.cfg.CacheTTL)
			log.Debug("site served from store cache")
			return cachedCopy(site), nil
		}
	}

	home, err := c.fetch(ctx, siteURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: homepage")
	}
	home.Page.Type = PageTypeHomepage
	home.Page.Text = truncate(home.Page.Text, c.cfg.PageCharLimit)

	targets := c.selectLinks(siteURL, home.Links)
	pages := make([]*model.Page, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			res, err := c.fetch(gctx, target)
			if err != nil {
				// Best effort: a missing subpage just means less context.
				log.Debug("subpage fetch failed", zap.String("url", target), zap.Error(err))
				return nil
			}
			res.Page.Text = truncate(res.Page.Text, c.cfg.PageCharLimit)
			pages[i] = &res.Page
			return nil
		})
	}
	_ = g.Wait()

	site := &model.SiteContent{URL: siteURL, Pages: []model.Page{home.Page}}
	for _, p := range pages {
		if p != nil {
			site.Pages = append(site.Pages, *p)
		}
	}

	c.mem.Put(siteURL, site, c.cfg.CacheTTL)
	if c.store != nil {
		if err := c.store.PutSite(ctx, siteURL, site, c.cfg.CacheTTL); err != nil {
			log.Warn("site cache write failed", zap.Error(err))
		}
	}

	log.Info("site crawled",
		zap.Int("pages", len(site.Pages)),
		zap.Int("links_found", len(home.Links)),
	)
	return site, nil
}

// selectLinks picks up to MaxPages-1 links, best page types first.
func (c *Crawler) selectLinks(siteURL string, links []string) []string {
	type cand struct {
		url      string
		priority int
		order    int
	}
	var cands []cand
	for i, link := range links {
		if link == siteURL {
			continue
		}
		t := ClassifyPath(pathOf(link))
		if t == PageTypeHomepage {
			continue
		}
		cands = append(cands, cand{url: link, priority: pagePriority[t], order: i})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].priority != cands[j].priority {
			return cands[i].priority < cands[j].priority
		}
		return cands[i].order < cands[j].order
	})

	limit := c.cfg.MaxPages - 1
	if limit < 0 {
		limit = 0
	}
	if len(cands) > limit {
		cands = cands[:limit]
	}

	out := make([]string, len(cands))
	for i, cd := range cands {
		out[i] = cd.url
	}
	return out
}

func cachedCopy(site *model.SiteContent) *model.SiteContent {
	cp := *site
	cp.FromCache = true
	return &cp
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
