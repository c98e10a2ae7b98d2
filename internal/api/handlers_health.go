// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend"
	"github.com/tomtom215/coursematch/internal/recommend/embedding"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
)

// Health handles GET / and GET /api/v1/health.
//
// The service is "healthy" when the catalog answers and an index is served,
// "degraded" otherwise. Health always answers 200 so an untrained service
// stays up while the first refresh runs.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := indexStatus(h.engine.Status())
	health := models.HealthResponse{
		Status:  "healthy",
		Message: "Course recommendation service is running",
		Version: Version,
		Index:   status,
	}

	switch {
	case h.catalog == nil || h.catalog.Ping(ctx) != nil:
		health.Status = "degraded"
		health.Message = "Catalog is unavailable"
	case !status.Trained:
		health.Status = "degraded"
		health.Message = "Index is not trained yet"
	}

	respondSuccess(w, http.StatusOK, health, start, status.Generation)
}

// statusResponse is the payload of GET /api/v1/status.
type statusResponse struct {
	Index         models.IndexStatus    `json:"index"`
	Catalog       *catalog.Stats        `json:"catalog,omitempty"`
	Snapshots     []storage.Metadata    `json:"snapshots,omitempty"`
	Cache         *embedding.CacheStats `json:"embedding_cache,omitempty"`
	UptimeSeconds float64               `json:"uptime_seconds"`
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	resp := statusResponse{
		Index:         indexStatus(h.engine.Status()),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, codeRecommendation, "Failed to read catalog statistics", err)
		return
	}
	resp.Catalog = &stats

	if h.snapshots != nil {
		// Best effort; the rest of the status is still reported.
		versions, err := h.snapshots.Versions(ctx, recommend.SnapshotName)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to list index snapshots")
		}
		resp.Snapshots = versions
	}
	if h.cache != nil {
		cache := h.cache.Stats()
		resp.Cache = &cache
	}

	respondSuccess(w, http.StatusOK, resp, start, resp.Index.Generation)
}
