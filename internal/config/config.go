// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP trigger/ops server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig governs the search-interest provider client and the fetch
// rate budget shared across all keyword/market pairs.
type SourceConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	RequestDelayMs   int    `mapstructure:"request_delay_ms"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// PipelineConfig fixes the keyword/market cross-product and the trailing
// windows for one run.
type PipelineConfig struct {
	Keywords        []string `mapstructure:"keywords"`
	Markets         []string `mapstructure:"markets"`
	FetchWindowDays int      `mapstructure:"fetch_window_days"`
	ExclusionDays   int      `mapstructure:"exclusion_days"`
}

// DBConfig controls access to the target analytical store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for run-outcome notifications. Empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig sets the bucket for raw payload archiving. Empty bucket
// disables archiving.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRENDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("source.request_delay_ms", 2000)
	v.SetDefault("source.max_attempts", 4)
	v.SetDefault("source.backoff_initial_ms", 1000)
	v.SetDefault("source.backoff_max_ms", 30000)
	v.SetDefault("pipeline.fetch_window_days", 7)
	v.SetDefault("pipeline.exclusion_days", 3)
	v.SetDefault("db.table", "interest_scores")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. A failure here is
// the fatal configuration error that aborts a run before any fetch.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.RequestDelayMs <= 0 {
		return fmt.Errorf("source.request_delay_ms must be > 0")
	}
	if c.Source.MaxAttempts <= 0 {
		return fmt.Errorf("source.max_attempts must be > 0")
	}
	if len(c.Pipeline.Keywords) == 0 {
		return fmt.Errorf("pipeline.keywords must not be empty")
	}
	if len(c.Pipeline.Markets) == 0 {
		return fmt.Errorf("pipeline.markets must not be empty")
	}
	for _, m := range c.Pipeline.Markets {
		if len(m) != 2 || m != strings.ToUpper(m) {
			return fmt.Errorf("pipeline.markets: %q is not a two-letter market code", m)
		}
	}
	if c.Pipeline.FetchWindowDays <= 0 {
		return fmt.Errorf("pipeline.fetch_window_days must be > 0")
	}
	if c.Pipeline.ExclusionDays < 0 {
		return fmt.Errorf("pipeline.exclusion_days must be >= 0")
	}
	if c.Pipeline.ExclusionDays >= c.Pipeline.FetchWindowDays {
		return fmt.Errorf("pipeline.exclusion_days must be < pipeline.fetch_window_days")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// SourceTimeout converts the provider timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// RequestDelay is the global minimum delay between consecutive source calls.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Source.RequestDelayMs) * time.Millisecond
}

// BackoffInitial is the base backoff delay after a retryable failure.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Source.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the backoff delay growth.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Source.BackoffMaxMs) * time.Millisecond
}
