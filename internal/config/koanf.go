// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/coursematch/config.yaml",
	"/etc/coursematch/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              5000,
			Host:              "0.0.0.0",
			Timeout:           30 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Catalog: CatalogConfig{
			Path:      "/data/coursematch.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
			SeedPath:  "",

			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Recommend: RecommendConfig{
			DefaultTopN:        5,
			MaxTopN:            100,
			SnapshotDir:        "/data/snapshots",
			PersistOnRefresh:   true,
			KeepSnapshots:      3,
			RefreshTimeout:     2 * time.Minute,
			RefreshInterval:    0, // Event-driven by default
			MinRefreshInterval: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			ModelPath:     "/models/all-MiniLM-L6-v2.Q8_0.gguf",
			ModelID:       "all-MiniLM-L6-v2",
			GPULayers:     0,
			MaxTokens:     128,
			Workers:       0,
			CacheEnabled:  true,
			CachePath:     "/data/embeddings",
			CacheInMemory: false,
		},
		Events: EventsConfig{
			Enabled:              true,
			RouterRetryCount:     3,
			RouterRetryInterval:  500 * time.Millisecond,
			RouterCloseTimeout:   30 * time.Second,
			PublishOnImport:      true,
			RefreshOnEnrollments: false, // Enrollments do not change course vectors
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional config file,
// and environment variables, then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", envValueFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values become slices
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first default path found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config keys.
var envMappings = map[string]string{
	"port":                "server.port", // PaaS convention
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"environment":         "server.environment",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"duckdb_path":       "catalog.path",
	"duckdb_max_memory": "catalog.max_memory",
	"duckdb_threads":    "catalog.threads",
	"catalog_seed_path": "catalog.seed_path",

	"catalog_breaker_failures": "catalog.breaker_failures",
	"catalog_breaker_timeout":  "catalog.breaker_timeout",

	"recommend_default_top_n":        "recommend.default_top_n",
	"recommend_max_top_n":            "recommend.max_top_n",
	"recommend_snapshot_dir":         "recommend.snapshot_dir",
	"recommend_persist_on_refresh":   "recommend.persist_on_refresh",
	"recommend_keep_snapshots":       "recommend.keep_snapshots",
	"recommend_refresh_timeout":      "recommend.refresh_timeout",
	"recommend_refresh_interval":     "recommend.refresh_interval",
	"recommend_min_refresh_interval": "recommend.min_refresh_interval",

	"embedding_model_path":      "embedding.model_path",
	"embedding_model_id":        "embedding.model_id",
	"embedding_gpu_layers":      "embedding.gpu_layers",
	"embedding_max_tokens":      "embedding.max_tokens",
	"embedding_workers":         "embedding.workers",
	"embedding_cache_enabled":   "embedding.cache_enabled",
	"embedding_cache_path":      "embedding.cache_path",
	"embedding_cache_in_memory": "embedding.cache_in_memory",

	"events_enabled":                "events.enabled",
	"events_router_retry_count":     "events.router_retry_count",
	"events_router_retry_interval":  "events.router_retry_interval",
	"events_router_close_timeout":   "events.router_close_timeout",
	"events_publish_on_import":      "events.publish_on_import",
	"events_refresh_on_enrollments": "events.refresh_on_enrollments",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variables to config keys.
// Unmapped variables return "" and are skipped so unrelated environment
// variables never reach the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// envValueFunc skips empty variables so an exported-but-blank variable
// never overrides a default.
func envValueFunc(key, value string) (string, interface{}) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return envTransformFunc(key), value
}
