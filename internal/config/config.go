// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package config loads service configuration with Koanf.
//
// Sources are layered in priority order (lowest to highest):
//  1. Built-in defaults (defaultConfig)
//  2. Config file (config.yaml, /etc/coursematch/config.yaml, or CONFIG_PATH)
//  3. Environment variables (mapped by envTransformFunc)
package config

import (
	"time"

	"github.com/tomtom215/coursematch/internal/api"
	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/recommend"
	"github.com/tomtom215/coursematch/internal/recommend/embedding"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`          // read/write timeout
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"` // graceful shutdown budget
	Environment     string        `koanf:"environment"`      // "development" or "production"

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// CatalogConfig holds DuckDB catalog settings
type CatalogConfig struct {
	Path      string `koanf:"path"`       // ":memory:" for an ephemeral catalog
	MaxMemory string `koanf:"max_memory"` // DuckDB memory cap, e.g. "1GB"
	Threads   int    `koanf:"threads"`    // 0 = runtime.NumCPU()
	SeedPath  string `koanf:"seed_path"`  // optional JSON seed imported at startup

	// Read circuit breaker: opens after BreakerFailures consecutive errors
	// and half-opens after BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// RecommendConfig holds index and query settings
type RecommendConfig struct {
	DefaultTopN      int           `koanf:"default_top_n"`
	MaxTopN          int           `koanf:"max_top_n"`
	SnapshotDir      string        `koanf:"snapshot_dir"`
	PersistOnRefresh bool          `koanf:"persist_on_refresh"`
	KeepSnapshots    int           `koanf:"keep_snapshots"`
	RefreshTimeout   time.Duration `koanf:"refresh_timeout"`

	// RefreshInterval rebuilds the index periodically (0 = only on events and requests).
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// MinRefreshInterval throttles event-driven refreshes.
	MinRefreshInterval time.Duration `koanf:"min_refresh_interval"`
}

// EmbeddingConfig holds text encoder settings
type EmbeddingConfig struct {
	ModelPath string `koanf:"model_path"` // GGUF weights
	ModelID   string `koanf:"model_id"`   // stored with snapshots and cache keys
	GPULayers int    `koanf:"gpu_layers"`
	MaxTokens int    `koanf:"max_tokens"`
	Workers   int    `koanf:"workers"` // concurrent encodes, 0 = NumCPU (max 16)

	CacheEnabled  bool   `koanf:"cache_enabled"`
	CachePath     string `koanf:"cache_path"`
	CacheInMemory bool   `koanf:"cache_in_memory"`
}

// EventsConfig holds Watermill router settings
type EventsConfig struct {
	Enabled              bool          `koanf:"enabled"`
	RouterRetryCount     int           `koanf:"router_retry_count"`
	RouterRetryInterval  time.Duration `koanf:"router_retry_interval"`
	RouterCloseTimeout   time.Duration `koanf:"router_close_timeout"`
	PublishOnImport      bool          `koanf:"publish_on_import"`
	RefreshOnEnrollments bool          `koanf:"refresh_on_enrollments"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// EngineConfig converts the recommend and embedding sections to the engine configuration.
func (c *Config) EngineConfig() *recommend.Config {
	return &recommend.Config{
		DefaultTopN:      c.Recommend.DefaultTopN,
		MaxTopN:          c.Recommend.MaxTopN,
		ModelID:          c.Embedding.ModelID,
		PersistOnRefresh: c.Recommend.PersistOnRefresh,
		KeepSnapshots:    c.Recommend.KeepSnapshots,
		RefreshTimeout:   c.Recommend.RefreshTimeout,
	}
}

// CatalogOptions converts the catalog section.
func (c *Config) CatalogOptions() catalog.Config {
	return catalog.Config{
		Path:      c.Catalog.Path,
		Threads:   c.Catalog.Threads,
		MaxMemory: c.Catalog.MaxMemory,
	}
}

// CatalogBreakerOptions converts the catalog breaker settings.
func (c *Config) CatalogBreakerOptions() catalog.BreakerConfig {
	cfg := catalog.DefaultBreakerConfig()
	cfg.FailureThreshold = c.Catalog.BreakerFailures
	cfg.Timeout = c.Catalog.BreakerTimeout
	return cfg
}

// VectorizerConfig converts the embedding section.
func (c *Config) VectorizerConfig() embedding.VectorizerConfig {
	return embedding.VectorizerConfig{
		ModelPath: c.Embedding.ModelPath,
		GPULayers: c.Embedding.GPULayers,
		MaxTokens: c.Embedding.MaxTokens,
		Workers:   c.Embedding.Workers,
	}
}

// RouterOptions converts the CORS and rate limit settings.
func (c *Config) RouterOptions() api.RouterConfig {
	return api.RouterConfig{
		CORSOrigins:       append([]string(nil), c.Server.CORSOrigins...),
		RateLimitRequests: c.Server.RateLimitReqs,
		RateLimitWindow:   c.Server.RateLimitWindow,
		RateLimitDisabled: c.Server.RateLimitDisabled,
	}
}

// EventRouterOptions converts the events section.
func (c *Config) EventRouterOptions() events.RouterConfig {
	cfg := events.DefaultRouterConfig()
	cfg.CloseTimeout = c.Events.RouterCloseTimeout
	cfg.RetryMaxRetries = c.Events.RouterRetryCount
	if c.Events.RouterRetryInterval > 0 {
		cfg.RetryInitialInterval = c.Events.RouterRetryInterval
	}
	return cfg
}

// LoggingOptions converts the logging section.
func (c *Config) LoggingOptions() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}
