// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package api

import (
	"context"
	"time"

	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend"
	"github.com/tomtom215/coursematch/internal/recommend/embedding"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
)

// Version is reported by the health endpoints. Overridden at build time.
var Version = "dev"

// Catalog is the subset of *catalog.Catalog the handlers use.
type Catalog interface {
	Ping(ctx context.Context) error
	EnrolledCourseIDs(ctx context.Context, learnerID string) ([]string, error)
	CoursesByID(ctx context.Context, ids []string) ([]models.Course, error)
	UpsertCourses(ctx context.Context, courses []models.Course) (int, error)
	AddEnrollments(ctx context.Context, enrollments []models.Enrollment) (int, error)
	Stats(ctx context.Context) (catalog.Stats, error)
}

// Recommender is the subset of *recommend.Engine the handlers use.
type Recommender interface {
	RecommendScored(enrolled []string, n int) recommend.Result
	SimilarToScored(id string, n int) recommend.Result
	Status() recommend.Status
	Config() *recommend.Config
}

// Refresher rebuilds the index on demand. trigger labels the refresh in
// logs and metrics.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) error
}

// EventPublisher announces catalog writes.
type EventPublisher interface {
	PublishCatalogChanged(ctx context.Context, change events.CatalogChanged) error
}

// SnapshotLister lists stored index snapshots, newest first.
type SnapshotLister interface {
	Versions(ctx context.Context, name string) ([]storage.Metadata, error)
}

// CacheReporter reports embedding cache counters.
type CacheReporter interface {
	Stats() embedding.CacheStats
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_helpers.go: response and parameter helpers
//   - handlers_health.go: health and status endpoints
//   - handlers_recommend.go: recommendation and similarity endpoints
//   - handlers_catalog.go: import and refresh endpoints
type Handler struct {
	catalog   Catalog
	engine    Recommender
	refresher Refresher      // optional; refresh endpoint answers 503 without it
	publisher EventPublisher // optional; imports are not announced without it
	snapshots SnapshotLister // optional; set with SetSnapshots
	cache     CacheReporter  // optional; set with SetEmbeddingCache

	queryTimeout   time.Duration
	refreshTimeout time.Duration
	startTime      time.Time
}

// NewHandler creates the API handler.
//
// Example:
//
//	handler := api.NewHandler(cat, engine, refreshSvc, bus)
//	router := api.NewRouter(handler, cfg.RouterOptions())
//	http.ListenAndServe(":5000", router.SetupChi())
func NewHandler(cat Catalog, engine Recommender, refresher Refresher, publisher EventPublisher) *Handler {
	refreshTimeout := 2 * time.Minute
	if engine != nil {
		if cfg := engine.Config(); cfg != nil && cfg.RefreshTimeout > 0 {
			refreshTimeout = cfg.RefreshTimeout
		}
	}

	return &Handler{
		catalog:        cat,
		engine:         engine,
		refresher:      refresher,
		publisher:      publisher,
		queryTimeout:   10 * time.Second,
		refreshTimeout: refreshTimeout,
		startTime:      time.Now(),
	}
}

// SetSnapshots lists stored snapshots on the status endpoint.
func (h *Handler) SetSnapshots(s SnapshotLister) {
	h.snapshots = s
}

// SetEmbeddingCache reports embedding cache counters on the status endpoint.
func (h *Handler) SetEmbeddingCache(c CacheReporter) {
	h.cache = c
}

// indexStatus converts engine status to its API representation.
func indexStatus(s recommend.Status) models.IndexStatus {
	return models.IndexStatus{
		Trained:       s.Trained,
		Generation:    s.Generation,
		Courses:       s.Courses,
		Dimensions:    s.Dimensions,
		BuiltAt:       s.BuiltAt,
		Refreshing:    s.Refreshing,
		LastRefreshAt: s.LastRefreshAt,
		LastError:     s.LastError,
		Refreshes:     s.Refreshes,
		Queries:       s.Queries,
	}
}
