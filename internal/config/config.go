package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Score     ScoreConfig     `yaml:"score" mapstructure:"score"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PlacesConfig holds the maps listing source settings.
type PlacesConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// AnthropicConfig holds Anthropic API settings. MaxOutputTokens is int64 to
// match the SDK's token fields.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int64  `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// NotionConfig holds Notion API credentials and the leads database ID.
type NotionConfig struct {
	Token              string  `yaml:"token" mapstructure:"token"`
	LeadDB             string  `yaml:"lead_db" mapstructure:"lead_db"`
	ExternalIDProperty string  `yaml:"external_id_property" mapstructure:"external_id_property"`
	RateLimit          float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// BudgetConfig sets the hard LLM spend ceiling for one run.
type BudgetConfig struct {
	CeilingUSD float64 `yaml:"ceiling_usd" mapstructure:"ceiling_usd"`
}

// CollectConfig configures the listing collection phase.
type CollectConfig struct {
	MaxListings int `yaml:"max_listings" mapstructure:"max_listings"`
	MinReviews  int `yaml:"min_reviews" mapstructure:"min_reviews"`
}

// CrawlConfig configures the website crawl phase.
type CrawlConfig struct {
	MaxPages      int `yaml:"max_pages" mapstructure:"max_pages"`
	Concurrency   int `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	PageCharLimit int `yaml:"page_char_limit" mapstructure:"page_char_limit"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ScoreConfig points at an optional scoring weights override file.
type ScoreConfig struct {
	WeightsPath string `yaml:"weights_path" mapstructure:"weights_path"`
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// RetryConfig tunes the shared retry policy for outbound calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig tunes the per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.page_size", 20)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_output_tokens", 1024)
	v.SetDefault("notion.external_id_property", "Place ID")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("budget.ceiling_usd", 5.00)
	v.SetDefault("collect.max_listings", 60)
	v.SetDefault("collect.min_reviews", 5)
	v.SetDefault("crawl.max_pages", 5)
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.timeout_secs", 20)
	v.SetDefault("crawl.cache_ttl_hours", 24)
	v.SetDefault("crawl.page_char_limit", 20000)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the credentials a pipeline run needs are present.
func (c *Config) Validate() error {
	if c.Places.Key == "" {
		return eris.New("config: places.key is required (LEADGEN_PLACES_KEY)")
	}
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required (LEADGEN_ANTHROPIC_KEY)")
	}
	if c.Notion.Token == "" {
		return eris.New("config: notion.token is required (LEADGEN_NOTION_TOKEN)")
	}
	if c.Notion.LeadDB == "" {
		return eris.New("config: notion.lead_db is required (LEADGEN_NOTION_LEAD_DB)")
	}
	if c.Budget.CeilingUSD <= 0 {
		return eris.New("config: budget.ceiling_usd must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
