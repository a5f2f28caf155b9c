// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and archive provider names.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Tool      ToolConfig      `mapstructure:"tool"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig governs run budgets and the merge policy.
type PipelineConfig struct {
	RunBudget   time.Duration `mapstructure:"run_budget"`
	Placeholder string        `mapstructure:"placeholder"`
	MaxTags     int           `mapstructure:"max_tags"`
	QueueDepth  int           `mapstructure:"queue_depth"`
}

// ToolConfig locates, installs and invokes the extraction tool.
type ToolConfig struct {
	Binary       string        `mapstructure:"binary"`
	InstallDir   string        `mapstructure:"install_dir"`
	ReleaseURL   string        `mapstructure:"release_url"`
	CacheDir     string        `mapstructure:"cache_dir"`
	UserAgent    string        `mapstructure:"user_agent"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// ThumbnailConfig sets the thumbnail host probed by the resolver.
type ThumbnailConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FallbackConfig sets the metadata-only endpoint.
type FallbackConfig struct {
	OEmbedURL string        `mapstructure:"oembed_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the catalog record store.
type StoreConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects where raw tool output is archived.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// TriggerConfig holds the record-created event sources.
type TriggerConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig identifies the record-created subscription.
type PubSubConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
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
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("pipeline.run_budget", 9*time.Minute)
	v.SetDefault("pipeline.placeholder", "Loading...")
	v.SetDefault("pipeline.max_tags", 20)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("tool.binary", "yt-dlp")
	v.SetDefault("tool.install_dir", "/tmp/enricher-bin")
	v.SetDefault("tool.release_url", "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp")
	v.SetDefault("tool.cache_dir", "/tmp/yt-dlp-cache")
	v.SetDefault("tool.probe_timeout", 30*time.Second)
	v.SetDefault("thumbnail.base_url", "https://i.ytimg.com/vi")
	v.SetDefault("thumbnail.timeout", 10*time.Second)
	v.SetDefault("fallback.oembed_url", "https://www.youtube.com/oembed")
	v.SetDefault("fallback.timeout", 15*time.Second)
	v.SetDefault("store.provider", StoreMemory)
	v.SetDefault("store.table", "catalog_records")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("trigger.pubsub.enabled", false)
	v.SetDefault("trigger.pubsub.max_outstanding", 16)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.RunBudget <= 0 {
		return fmt.Errorf("pipeline.run_budget must be > 0")
	}
	if c.Pipeline.MaxTags <= 0 {
		return fmt.Errorf("pipeline.max_tags must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	switch c.Store.Provider {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case ArchiveNone, ArchiveMemory, "":
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required when archive.provider is local")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.Trigger.PubSub.Enabled && (c.Trigger.PubSub.ProjectID == "" || c.Trigger.PubSub.SubscriptionID == "") {
		return fmt.Errorf("trigger.pubsub.project_id and subscription_id must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
