package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/quizd/internal/logging"
)

// Config is the root quizd configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
	Shards  ShardsConfig   `koanf:"shards"`
	Search  SearchConfig   `koanf:"search"`
	Models  ModelsConfig   `koanf:"models"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ShardsConfig configures the shard store accessor.
type ShardsConfig struct {
	// Source selects the backing source: "http" (object storage) or "dir"
	// (local directory, used in development).
	Source string `koanf:"source"`

	// BaseURL is the object-storage base URL for the http source.
	BaseURL string `koanf:"base_url"`

	// Dir is the shard directory for the dir source.
	Dir string `koanf:"dir"`

	// Watch enables fsnotify invalidation for the dir source.
	Watch bool `koanf:"watch"`

	CacheTTL     time.Duration `koanf:"cache_ttl"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	FetchRetries int           `koanf:"fetch_retries"`
}

// SearchConfig configures the relevance search engine.
//
// The quality thresholds are empirically tuned per corpus. They are
// calibration data, not semantic invariants; retune them when the corpus
// changes materially.
type SearchConfig struct {
	ResultCacheTTL time.Duration `koanf:"result_cache_ttl"`

	// MaxShards bounds the number of shards fetched per search.
	MaxShards int `koanf:"max_shards"`

	// GeneralShard is always appended to the selected shard list.
	GeneralShard string `koanf:"general_shard"`

	Thresholds QualityThresholds `koanf:"thresholds"`
}

// QualityThresholds are the score cutoffs separating quality bands.
// A score below Poor is poor, below Acceptable is acceptable, below Good is
// good, and at or above Good is excellent. EarlyExit stops scanning once a
// running score reaches it.
type QualityThresholds struct {
	Poor       int `koanf:"poor"`
	Acceptable int `koanf:"acceptable"`
	Good       int `koanf:"good"`
	EarlyExit  int `koanf:"early_exit"`
}

// ModelsConfig configures the generation backend chain.
type ModelsConfig struct {
	// Chain is the ordered list of backends, tried first to last.
	Chain []ModelConfig `koanf:"chain"`

	CallTimeout    time.Duration `koanf:"call_timeout"`
	PipelineBudget time.Duration `koanf:"pipeline_budget"`

	MaxRetries        int           `koanf:"max_retries"`
	BackoffBase       time.Duration `koanf:"backoff_base"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	BackoffCap        time.Duration `koanf:"backoff_cap"`

	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// ModelConfig describes one generation backend.
type ModelConfig struct {
	ID       string `koanf:"id"`
	Provider string `koanf:"provider"` // openai, anthropic, ollama
	Model    string `koanf:"model"`
	Tier     int    `koanf:"tier"`
	BaseURL  string `koanf:"base_url"`

	// APIKeyEnv names the environment variable holding the API key, so keys
	// never appear in config files.
	APIKeyEnv string `koanf:"api_key_env"`

	// RPS rate-limits calls to this backend. Zero disables the limiter.
	RPS float64 `koanf:"rps"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	switch c.Shards.Source {
	case "http":
		if c.Shards.BaseURL == "" {
			return fmt.Errorf("shards: base_url is required for the http source")
		}
	case "dir":
		if c.Shards.Dir == "" {
			return fmt.Errorf("shards: dir is required for the dir source")
		}
	default:
		return fmt.Errorf("shards: unknown source %q (expected http or dir)", c.Shards.Source)
	}

	t := c.Search.Thresholds
	if !(0 < t.Poor && t.Poor < t.Acceptable && t.Acceptable < t.Good) {
		return fmt.Errorf("search: thresholds must satisfy 0 < poor < acceptable < good")
	}
	if t.EarlyExit < t.Good {
		return fmt.Errorf("search: early_exit must be at or above the good threshold")
	}

	if len(c.Models.Chain) == 0 {
		return fmt.Errorf("models: chain must list at least one backend")
	}
	seen := make(map[string]bool, len(c.Models.Chain))
	for i, m := range c.Models.Chain {
		if m.ID == "" {
			return fmt.Errorf("models: chain[%d] is missing an id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("models: duplicate backend id %q", m.ID)
		}
		seen[m.ID] = true
		switch m.Provider {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("models: chain[%d] has unknown provider %q", i, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("models: chain[%d] is missing a model name", i)
		}
	}
	if c.Models.BackoffMultiplier < 1 {
		return fmt.Errorf("models: backoff_multiplier must be >= 1")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Shards.Source == "" {
		cfg.Shards.Source = "http"
	}
	if cfg.Shards.CacheTTL == 0 {
		cfg.Shards.CacheTTL = 24 * time.Hour
	}
	if cfg.Shards.FetchTimeout == 0 {
		cfg.Shards.FetchTimeout = 10 * time.Second
	}
	if cfg.Shards.FetchRetries == 0 {
		cfg.Shards.FetchRetries = 3
	}

	if cfg.Search.ResultCacheTTL == 0 {
		cfg.Search.ResultCacheTTL = 2 * time.Hour
	}
	if cfg.Search.MaxShards == 0 {
		cfg.Search.MaxShards = 4
	}
	if cfg.Search.GeneralShard == "" {
		cfg.Search.GeneralShard = "general-pathology"
	}
	if cfg.Search.Thresholds == (QualityThresholds{}) {
		cfg.Search.Thresholds = QualityThresholds{
			Poor:       30,
			Acceptable: 80,
			Good:       160,
			EarlyExit:  200,
		}
	}

	if cfg.Models.CallTimeout == 0 {
		cfg.Models.CallTimeout = 20 * time.Second
	}
	if cfg.Models.PipelineBudget == 0 {
		cfg.Models.PipelineBudget = 50 * time.Second
	}
	if cfg.Models.MaxRetries == 0 {
		cfg.Models.MaxRetries = 3
	}
	if cfg.Models.BackoffBase == 0 {
		cfg.Models.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Models.BackoffMultiplier == 0 {
		cfg.Models.BackoffMultiplier = 2.0
	}
	if cfg.Models.BackoffCap == 0 {
		cfg.Models.BackoffCap = 8 * time.Second
	}
	if cfg.Models.Temperature == 0 {
		cfg.Models.Temperature = 0.7
	}
	if cfg.Models.MaxTokens == 0 {
		cfg.Models.MaxTokens = 2048
	}
}
