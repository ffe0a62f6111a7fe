// Package config provides configuration loading for caselawd.
//
// Configuration is assembled from three layers, highest precedence first:
//
//  1. Environment variables (SERVER_PORT, FALLBACK_DAILY_LIMIT, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Registry  RegistryConfig  `koanf:"registry"`
	Cache     CacheConfig     `koanf:"cache"`
	Fallback  FallbackConfig  `koanf:"fallback"`
	Search    SearchConfig    `koanf:"search"`
	Export    ExportConfig    `koanf:"export"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OTLP metric export settings. Disabled by default;
// metrics fall back to the no-op global meter when disabled.
type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"` // "grpc" (default) or "http/protobuf"
	Insecure       bool   `koanf:"insecure"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
}

// RegistryConfig holds the source registry table and environment.
type RegistryConfig struct {
	// Environment the policy gate evaluates decisions in
	// (production, staging, ci, development).
	Environment string `koanf:"environment"`

	// SourcesFile optionally points at a YAML file of sources that can
	// be reloaded at runtime. When set, it replaces the inline Sources
	// table below.
	SourcesFile string `koanf:"sources_file"`

	// Sources is the inline source table. Empty means built-in defaults.
	Sources []SourceConfig `koanf:"sources"`
}

// SourceConfig describes one registry source.
type SourceConfig struct {
	ID    string `koanf:"id" yaml:"id"`
	Host  string `koanf:"host" yaml:"host"`
	Class string `koanf:"class" yaml:"class"` // "official" or "unofficial"

	// FeedURL is the decision feed endpoint for official sources.
	FeedURL string `koanf:"feed_url" yaml:"feed_url"`

	// FeedFormat is "atom" or "json". Defaults to "atom".
	FeedFormat string `koanf:"feed_format" yaml:"feed_format"`

	// Environments maps environment name to permissions.
	Environments map[string]PermissionsConfig `koanf:"environments" yaml:"environments"`
}

// PermissionsConfig holds the per-environment action flags for a source.
type PermissionsConfig struct {
	Ingest bool `koanf:"ingest" yaml:"ingest"`
	Cite   bool `koanf:"cite" yaml:"cite"`
	Export bool `koanf:"export" yaml:"export"`
}

// CacheConfig holds official feed cache settings.
type CacheConfig struct {
	// FreshTTL is the window during which a cached entry is served with
	// no I/O at all.
	FreshTTL Duration `koanf:"fresh_ttl"`

	// StaleTTL is the ceiling after which a blocking refetch is
	// mandatory. Between FreshTTL and StaleTTL cached records are served
	// while a single background refresh runs.
	StaleTTL Duration `koanf:"stale_ttl"`

	// FetchTimeout bounds each outbound feed fetch.
	FetchTimeout Duration `koanf:"fetch_timeout"`

	// RefreshWorkers bounds concurrent background refreshes.
	RefreshWorkers int `koanf:"refresh_workers"`

	// FetchWorkers bounds concurrent per-query source fetches.
	FetchWorkers int `koanf:"fetch_workers"`
}

// FallbackConfig holds the quota-limited fallback client settings. The
// defaults reflect the external provider's real contract; raising them
// does not raise the provider's ceilings.
type FallbackConfig struct {
	Enabled       bool     `koanf:"enabled"`
	BaseURL       string   `koanf:"base_url"`
	APIKey        Secret   `koanf:"api_key"`
	DailyLimit    int      `koanf:"daily_limit"`
	PerSecond     int      `koanf:"per_second_limit"`
	MaxConcurrent int      `koanf:"max_concurrent"`
	Timeout       Duration `koanf:"timeout"`
}

// SearchConfig holds retrieval orchestration settings.
type SearchConfig struct {
	// MaxResults caps the ranked result list.
	MaxResults int `koanf:"max_results"`

	// MinQueryTokens is the minimum count of non-stopword tokens a query
	// needs before any source is consulted.
	MinQueryTokens int `koanf:"min_query_tokens"`
}

// ExportConfig holds export approval and validation settings.
type ExportConfig struct {
	// SigningKey signs approval tokens. Required in hardened
	// environments.
	SigningKey Secret `koanf:"signing_key"`

	// TokenTTL is the approval token lifetime.
	TokenTTL Duration `koanf:"token_ttl"`

	// MaxBytes caps the exported document size.
	MaxBytes int64 `koanf:"max_bytes"`

	// AllowedContentTypes lists acceptable declared payload types.
	AllowedContentTypes []string `koanf:"allowed_content_types"`

	// FetchTimeout bounds the document fetch.
	FetchTimeout Duration `koanf:"fetch_timeout"`
}

// applyDefaults fills zero values with production-ready defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8450
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "caselawd"
	}
	if cfg.Registry.Environment == "" {
		cfg.Registry.Environment = "development"
	}
	if cfg.Cache.FreshTTL == 0 {
		cfg.Cache.FreshTTL = Duration(15 * time.Minute)
	}
	if cfg.Cache.StaleTTL == 0 {
		cfg.Cache.StaleTTL = Duration(6 * time.Hour)
	}
	if cfg.Cache.FetchTimeout == 0 {
		cfg.Cache.FetchTimeout = Duration(10 * time.Second)
	}
	if cfg.Cache.RefreshWorkers == 0 {
		cfg.Cache.RefreshWorkers = 2
	}
	if cfg.Cache.FetchWorkers == 0 {
		cfg.Cache.FetchWorkers = 4
	}
	if cfg.Fallback.BaseURL == "" {
		cfg.Fallback.BaseURL = "https://api.canlii.org"
	}
	if cfg.Fallback.DailyLimit == 0 {
		cfg.Fallback.DailyLimit = 2500
	}
	if cfg.Fallback.PerSecond == 0 {
		cfg.Fallback.PerSecond = 2
	}
	if cfg.Fallback.MaxConcurrent == 0 {
		cfg.Fallback.MaxConcurrent = 1
	}
	if cfg.Fallback.Timeout == 0 {
		cfg.Fallback.Timeout = Duration(10 * time.Second)
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 25
	}
	if cfg.Search.MinQueryTokens == 0 {
		cfg.Search.MinQueryTokens = 2
	}
	if cfg.Export.TokenTTL == 0 {
		cfg.Export.TokenTTL = Duration(10 * time.Minute)
	}
	if cfg.Export.MaxBytes == 0 {
		cfg.Export.MaxBytes = 20 << 20 // 20MB
	}
	if len(cfg.Export.AllowedContentTypes) == 0 {
		cfg.Export.AllowedContentTypes = []string{"application/pdf"}
	}
	if cfg.Export.FetchTimeout == 0 {
		cfg.Export.FetchTimeout = Duration(30 * time.Second)
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	switch c.Registry.Environment {
	case "production", "staging", "ci", "development":
	default:
		return fmt.Errorf("registry.environment must be one of production, staging, ci, development; got %q", c.Registry.Environment)
	}
	if c.Cache.FreshTTL.Duration() >= c.Cache.StaleTTL.Duration() {
		return fmt.Errorf("cache.fresh_ttl (%s) must be shorter than cache.stale_ttl (%s)",
			c.Cache.FreshTTL.Duration(), c.Cache.StaleTTL.Duration())
	}
	if c.Cache.RefreshWorkers < 1 || c.Cache.FetchWorkers < 1 {
		return fmt.Errorf("cache worker counts must be positive")
	}
	if c.Fallback.DailyLimit < 1 || c.Fallback.PerSecond < 1 || c.Fallback.MaxConcurrent < 1 {
		return fmt.Errorf("fallback limits must be positive")
	}
	if c.Fallback.Enabled && !c.Fallback.APIKey.IsSet() {
		return fmt.Errorf("fallback.api_key is required when fallback is enabled")
	}
	if c.Search.MinQueryTokens < 1 {
		return fmt.Errorf("search.min_query_tokens must be positive")
	}
	if c.Export.MaxBytes < 1 {
		return fmt.Errorf("export.max_bytes must be positive")
	}
	hardened := c.Registry.Environment == "production" ||
		c.Registry.Environment == "staging" || c.Registry.Environment == "ci"
	if hardened && !c.Export.SigningKey.IsSet() {
		return fmt.Errorf("export.signing_key is required in %s", c.Registry.Environment)
	}
	return nil
}
