// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/coursematch/internal/logging"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}

	if err := c.validateRecommend(); err != nil {
		return err
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got %q", c.Server.Environment)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Server.RateLimitReqs)
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Server.RateLimitWindow)
		}
	}
	if c.IsProduction() {
		for _, origin := range c.Server.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production")
			}
		}
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH is required (use :memory: for an ephemeral catalog)")
	}
	if c.Catalog.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative, got %d", c.Catalog.Threads)
	}
	if c.Catalog.BreakerFailures == 0 {
		return fmt.Errorf("CATALOG_BREAKER_FAILURES must be at least 1")
	}
	if c.Catalog.BreakerTimeout <= 0 {
		return fmt.Errorf("CATALOG_BREAKER_TIMEOUT must be positive, got %v", c.Catalog.BreakerTimeout)
	}
	return nil
}

func (c *Config) validateRecommend() error {
	if c.Recommend.SnapshotDir == "" {
		return fmt.Errorf("RECOMMEND_SNAPSHOT_DIR is required")
	}
	if c.Recommend.RefreshInterval < 0 {
		return fmt.Errorf("RECOMMEND_REFRESH_INTERVAL must not be negative, got %v", c.Recommend.RefreshInterval)
	}
	if c.Recommend.MinRefreshInterval < 0 {
		return fmt.Errorf("RECOMMEND_MIN_REFRESH_INTERVAL must not be negative, got %v", c.Recommend.MinRefreshInterval)
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("recommend: %w", err)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.Embedding.ModelPath == "" {
		return fmt.Errorf("EMBEDDING_MODEL_PATH is required")
	}
	if c.Embedding.ModelID == "" {
		return fmt.Errorf("EMBEDDING_MODEL_ID is required")
	}
	if c.Embedding.GPULayers < 0 {
		return fmt.Errorf("EMBEDDING_GPU_LAYERS must not be negative, got %d", c.Embedding.GPULayers)
	}
	if c.Embedding.MaxTokens < 1 {
		return fmt.Errorf("EMBEDDING_MAX_TOKENS must be positive, got %d", c.Embedding.MaxTokens)
	}
	if c.Embedding.Workers < 0 {
		return fmt.Errorf("EMBEDDING_WORKERS must not be negative, got %d", c.Embedding.Workers)
	}
	if c.Embedding.CacheEnabled && !c.Embedding.CacheInMemory && c.Embedding.CachePath == "" {
		return fmt.Errorf("EMBEDDING_CACHE_PATH is required when the embedding cache is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.RouterRetryCount < 0 {
		return fmt.Errorf("EVENTS_ROUTER_RETRY_COUNT must not be negative, got %d", c.Events.RouterRetryCount)
	}
	if c.Events.RouterCloseTimeout <= 0 {
		return fmt.Errorf("EVENTS_ROUTER_CLOSE_TIMEOUT must be positive, got %v", c.Events.RouterCloseTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
