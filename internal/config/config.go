package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables honored on top of the config file.
const (
	EnvConfigPath    = "EMBEDGATE_CONFIG"
	EnvDataDir       = "EMBEDGATE_DATA_DIR"
	EnvDeferred      = "EMBEDGATE_DEFERRED"
	EnvCachePath     = "EMBEDGATE_CACHE_PATH"
	EnvQueuePath     = "EMBEDGATE_QUEUE_PATH"
	EnvTelemetryPath = "EMBEDGATE_TELEMETRY_PATH"
)

// Config holds all embedgate configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Batch     BatchConfig     `yaml:"batch"`
	Deferred  DeferredConfig  `yaml:"deferred"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
}

// ProviderConfig selects and credentials the embedding provider. Empty
// fields fall back to environment detection.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	// Path is the SQLite file; empty selects the in-memory cache.
	Path                   string        `yaml:"path"`
	TTL                    time.Duration `yaml:"ttl"`
	MaxEntries             int64         `yaml:"max_entries"`
	MaintenanceProbability float64       `yaml:"maintenance_probability"`
}

// BreakerConfig controls the circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxCooldown      time.Duration `yaml:"max_cooldown"`
}

// RetryConfig controls provider call retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// BatchConfig controls batch splitting and fallback.
type BatchConfig struct {
	SubBatchItems     int           `yaml:"sub_batch_items"`
	SubBatchChars     int           `yaml:"sub_batch_chars"`
	ItemFallback      *bool         `yaml:"item_fallback"`
	ItemFallbackDelay time.Duration `yaml:"item_fallback_delay"`
}

// DeferredConfig controls the deferred execution path.
type DeferredConfig struct {
	Enabled             bool          `yaml:"enabled"`
	QueuePath           string        `yaml:"queue_path"`
	Workers             int           `yaml:"workers"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	StaleAfter          time.Duration `yaml:"stale_after"`
	OptedOutCollections []string      `yaml:"opted_out_collections"`
}

// TelemetryConfig controls event recording.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the SQLite file; empty logs events to stderr instead.
	Path string `yaml:"path"`
}

// RecoveryConfig controls the self-healing budget.
type RecoveryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// Default returns a Config with sensible defaults: local provider
// detection, in-memory cache, deferred execution off.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:                    30 * 24 * time.Hour,
			MaxEntries:             100000,
			MaintenanceProbability: 0.01,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Batch: BatchConfig{
			SubBatchItems:     50,
			SubBatchChars:     100 * 1024,
			ItemFallbackDelay: 100 * time.Millisecond,
		},
		Deferred: DeferredConfig{
			Workers:      2,
			PollInterval: time.Second,
			StaleAfter:   5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 5,
			Window:      time.Hour,
		},
	}
}

// Load reads a YAML config file, expands environment variables in its
// text, and applies environment overrides. A missing path returns the
// defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment overrides over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvCachePath); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv(EnvQueuePath); v != "" {
		c.Deferred.QueuePath = v
	}
	if v := os.Getenv(EnvTelemetryPath); v != "" {
		c.Telemetry.Path = v
	}
	switch os.Getenv(EnvDeferred) {
	case "1", "true", "yes", "on":
		c.Deferred.Enabled = true
	case "0", "false", "no", "off":
		c.Deferred.Enabled = false
	}
}

// ItemFallbackEnabled resolves the tri-state flag; unset means on.
func (b BatchConfig) ItemFallbackEnabled() bool {
	if b.ItemFallback == nil {
		return true
	}
	return *b.ItemFallback
}
