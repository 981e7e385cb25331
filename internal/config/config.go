// Package config loads process configuration from a YAML file plus
// environment overrides, and initializes the global zap logger.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Proxy     ProxyConfig     `yaml:"proxy" mapstructure:"proxy"`
	Pacing    PacingConfig    `yaml:"pacing" mapstructure:"pacing"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Campaign  CampaignConfig  `yaml:"campaign" mapstructure:"campaign"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" | "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds the LLM extractor's Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`

	// CircuitFailureThreshold and CircuitResetTimeoutSecs tune the breaker
	// that protects the extractor from a struggling Anthropic endpoint.
	// Zero means "use resilience.DefaultCircuitBreakerConfig".
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
}

// ProxyConfig configures the Proxy Pool (C2). PROXY_URLS and PROXY_ROTATION
// are the two env-overridable knobs named in the specification; everything
// else about proxy health is hardcoded policy, not configuration.
type ProxyConfig struct {
	URLs           []string `yaml:"urls" mapstructure:"urls"`
	RotationPolicy string   `yaml:"rotation" mapstructure:"rotation"` // "random" | "round-robin"
	CooldownSecs   int      `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	FailureThresh  int      `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// PacingConfig exposes only what the spec allows the Pacing Governor (C1) to
// take from configuration. The policy constants (spacing, jitter, backoff
// multiplier, window size/cap, extended cooldown) are deliberately NOT here
// — the specification calls them "not end-user configurable" — they live as
// Go constants in internal/pacing.
type PacingConfig struct {
	DefaultHost string `yaml:"default_host" mapstructure:"default_host"`
}

// FetchConfig configures the Fetch Engine (C3).
type FetchConfig struct {
	NavigationTimeoutSecs int `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
	QuickRetries          int `yaml:"quick_retries" mapstructure:"quick_retries"`
	LongWaitRetries       int `yaml:"long_wait_retries" mapstructure:"long_wait_retries"`
}

// CampaignConfig configures the Campaign Orchestrator (C5).
type CampaignConfig struct {
	MaxPostsDefault       int `yaml:"max_posts_default" mapstructure:"max_posts_default"`
	StoreWriteTimeoutSecs int `yaml:"store_write_timeout_secs" mapstructure:"store_write_timeout_secs"`

	// StoreWriteMaxAttempts bounds the retry-with-backoff applied to every
	// store write. Zero means "use resilience.DefaultRetryConfig".
	StoreWriteMaxAttempts int `yaml:"store_write_max_attempts" mapstructure:"store_write_max_attempts"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, "store.driver must be \"sqlite\" or \"postgres\"")
	}
	if c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Proxy.RotationPolicy != "random" && c.Proxy.RotationPolicy != "round-robin" {
		errs = append(errs, "proxy.rotation must be \"random\" or \"round-robin\"")
	}
	if c.Campaign.MaxPostsDefault < 1 {
		errs = append(errs, "campaign.max_posts_default must be >= 1")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from an optional config.yaml plus environment
// overrides. PROXY_URLS, PROXY_ROTATION, and MAX_POSTS are bound at their
// bare env names per the specification's configuration surface; everything
// else uses the CRAWL_ prefix convention.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.timeout_secs", 90)
	v.SetDefault("proxy.rotation", "random")
	v.SetDefault("proxy.cooldown_secs", 1800)
	v.SetDefault("proxy.failure_threshold", 3)
	v.SetDefault("pacing.default_host", "www.linkedin.com")
	v.SetDefault("fetch.navigation_timeout_secs", 60)
	v.SetDefault("fetch.quick_retries", 3)
	v.SetDefault("fetch.long_wait_retries", 3)
	v.SetDefault("campaign.max_posts_default", 100)
	v.SetDefault("campaign.store_write_timeout_secs", 10)
	v.SetDefault("campaign.store_write_max_attempts", 3)
	v.SetDefault("anthropic.circuit_failure_threshold", 5)
	v.SetDefault("anthropic.circuit_reset_timeout_secs", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Bare env-var overrides named explicitly by the specification §6,
	// applied after the prefixed-viper unmarshal so they always win.
	if raw, ok := lookupEnv("PROXY_URLS"); ok && raw != "" {
		cfg.Proxy.URLs = splitCSV(raw)
	}
	if raw, ok := lookupEnv("PROXY_ROTATION"); ok && raw != "" {
		cfg.Proxy.RotationPolicy = raw
	}
	if raw, ok := lookupEnv("MAX_POSTS"); ok && raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Campaign.MaxPostsDefault = n
		}
	}

	return &cfg, nil
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
