// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package main is the entry point for the coursematch server.
//
// coursematch recommends courses to learners by embedding every course
// description with a local sentence-embedding model and ranking the catalog
// by cosine similarity to the mean embedding of the learner's enrollments.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, environment (Koanf v2)
//  2. Logging: zerolog, routed into suture and Watermill through slog
//  3. Catalog: DuckDB, optionally seeded from CATALOG_SEED_PATH
//  4. Encoder: GGUF model via llama.cpp, optionally behind a BadgerDB cache
//  5. Engine: latest index snapshot, or a fresh build from the catalog
//  6. Supervisor tree: refresh loop, event router, HTTP server
//
// # Example Usage
//
//	export EMBEDDING_MODEL_PATH=/models/all-MiniLM-L6-v2.Q8_0.gguf
//	export DUCKDB_PATH=/data/coursematch.duckdb
//	export CATALOG_SEED_PATH=/data/seed.json
//	./coursematch
//
//	curl localhost:5000/api/v1/recommend/42?top_n=5
//
// SIGINT and SIGTERM stop the tree; the HTTP server drains in-flight
// requests within SHUTDOWN_TIMEOUT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/coursematch/internal/api"
	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/config"
	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/recommend"
	"github.com/tomtom215/coursematch/internal/recommend/embedding"
	"github.com/tomtom215/coursematch/internal/recommend/embedding/llama"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
	"github.com/tomtom215/coursematch/internal/supervisor"
	"github.com/tomtom215/coursematch/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.LoggingOptions())

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential startup steps
func run(cfg *config.Config) error {
	logging.Info().
		Str("version", api.Version).
		Str("environment", cfg.Server.Environment).
		Str("catalog", cfg.Catalog.Path).
		Str("model", cfg.Embedding.ModelID).
		Msg("Starting coursematch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === CATALOG ===

	db, err := catalog.Open(ctx, cfg.CatalogOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog")
		}
	}()

	seeded := false
	if cfg.Catalog.SeedPath != "" {
		res, err := db.ImportFile(ctx, cfg.Catalog.SeedPath)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		seeded = res.Courses > 0
	}

	cat := catalog.NewGuarded(db, cfg.CatalogBreakerOptions(), logging.WithComponent("catalog"))

	// === ENCODER ===

	encoder, cache, closeEncoder, err := initEncoder(cfg)
	if err != nil {
		return err
	}
	defer closeEncoder()

	// === ENGINE ===

	store, err := storage.NewStore(cfg.Recommend.SnapshotDir)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}

	engine, err := recommend.NewEngine(cfg.EngineConfig(), encoder, logging.WithComponent("recommend"))
	if err != nil {
		return err
	}
	engine.SetSource(cat)
	engine.SetStore(store)

	refresh := services.NewRefreshService(engine, services.RefreshServiceConfig{
		Interval:             cfg.Recommend.RefreshInterval,
		MinInterval:          cfg.Recommend.MinRefreshInterval,
		Timeout:              cfg.Recommend.RefreshTimeout,
		RefreshOnEnrollments: cfg.Events.RefreshOnEnrollments,
	}, logging.WithComponent("supervisor"))

	// A fresh seed supersedes any stored snapshot.
	if seeded {
		err = refresh.Refresh(ctx, services.TriggerStartup)
	} else {
		err = refresh.Warm(ctx)
	}
	if err != nil {
		logging.Error().Err(err).Msg("Index unavailable at startup, serving empty results until the next refresh")
	}

	// === SUPERVISOR TREE ===

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddIndexService(refresh)

	var publisher api.EventPublisher
	if cfg.Events.Enabled {
		wmLogger := watermill.NewSlogLogger(slogLogger)
		bus := events.NewBus(wmLogger)
		defer func() {
			if err := bus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event bus")
			}
		}()

		routerCfg := cfg.EventRouterOptions()
		router, err := events.NewRouter(&routerCfg, bus, wmLogger)
		if err != nil {
			return err
		}
		router.OnCatalogChanged("refresh-index", refresh.HandleCatalogChanged)
		tree.AddMessagingService(services.NewEventRouterService(router, logging.WithComponent("supervisor")))

		if cfg.Events.PublishOnImport {
			publisher = bus
		}
		logging.Info().Msg("Catalog events enabled")
	}

	handler := api.NewHandler(cat, engine, refresh, publisher)
	handler.SetSnapshots(store)
	if cache != nil {
		handler.SetEmbeddingCache(cache)
	}
	router := api.NewRouter(handler, cfg.RouterOptions())

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + cfg.Recommend.RefreshTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, logging.WithComponent("supervisor")))

	// === START ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down supervisor tree")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // best-effort report
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	return treeErr
}

// initEncoder loads the model and wraps it with the embedding cache when
// enabled. The cache is nil when disabled or unavailable. The returned func
// releases both.
func initEncoder(cfg *config.Config) (recommend.Encoder, *embedding.CachedEncoder, func(), error) {
	vectorizer, err := llama.NewVectorizer(cfg.VectorizerConfig(), logging.WithComponent("embedding"))
	if err != nil {
		return nil, nil, nil, err
	}
	closeVectorizer := func() {
		if err := vectorizer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing embedding model")
		}
	}

	if !cfg.Embedding.CacheEnabled {
		return vectorizer, nil, closeVectorizer, nil
	}

	var db *badger.DB
	db, err = embedding.OpenCache(cfg.Embedding.CachePath, cfg.Embedding.CacheInMemory)
	if err != nil {
		// The cache only saves work; run without it.
		logging.Warn().Err(err).Str("path", cfg.Embedding.CachePath).Msg("Embedding cache unavailable, encoding without cache")
		return vectorizer, nil, closeVectorizer, nil
	}

	cached := embedding.NewCachedEncoder(vectorizer, db, cfg.Embedding.ModelID, logging.WithComponent("embedding"))
	logging.Info().
		Str("path", cfg.Embedding.CachePath).
		Bool("in_memory", cfg.Embedding.CacheInMemory).
		Msg("Embedding cache enabled")

	return cached, cached, func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing embedding cache")
		}
		closeVectorizer()
	}, nil
}
