// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/coursematch/internal/catalog"
	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend"
)

// maxImportBodyBytes caps the import request body.
const maxImportBodyBytes = 32 << 20

// RefreshTriggerAPI labels refreshes requested over HTTP.
const RefreshTriggerAPI = "api"

// importRequest is the validated form of an import body.
type importRequest struct {
	Courses     []models.Course     `json:"courses" validate:"max=50000,dive"`
	Enrollments []models.Enrollment `json:"enrollments" validate:"max=500000,dive"`
}

// ImportCatalog handles POST /api/v1/catalog/import.
//
// The body is a seed document ({courses, enrollments}, LMS field names
// accepted). Courses are upserted, enrollments added, and a catalog.changed
// event is published so the refresh service rebuilds the index. Answers 202
// because the rebuild happens asynchronously.
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBodyBytes)
	var seed catalog.Seed
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		respondError(w, r, http.StatusBadRequest, codeInvalidBody, "Request body must be a JSON object with courses and enrollments", nil)
		return
	}

	req := importRequest{
		Courses:     make([]models.Course, len(seed.Courses)),
		Enrollments: make([]models.Enrollment, len(seed.Enrollments)),
	}
	for i := range seed.Courses {
		req.Courses[i] = seed.Courses[i].Course()
	}
	for i := range seed.Enrollments {
		req.Enrollments[i] = seed.Enrollments[i].Enrollment()
	}
	if len(req.Courses) == 0 && len(req.Enrollments) == 0 {
		respondError(w, r, http.StatusBadRequest, codeValidation, "Import must contain at least one course or enrollment", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.refreshTimeout)
	defer cancel()

	var result catalog.ImportResult
	var err error
	if result.Courses, err = h.catalog.UpsertCourses(ctx, req.Courses); err != nil {
		respondError(w, r, http.StatusInternalServerError, codeRecommendation, "Failed to store courses", err)
		return
	}
	if result.Enrollments, err = h.catalog.AddEnrollments(ctx, req.Enrollments); err != nil {
		respondError(w, r, http.StatusInternalServerError, codeRecommendation, "Failed to store enrollments", err)
		return
	}

	if h.publisher != nil {
		change := events.CatalogChanged{
			Reason:      "import",
			Courses:     result.Courses,
			Enrollments: result.Enrollments,
			OccurredAt:  time.Now().UTC(),
		}
		// The catalog write already succeeded; a lost event is caught by
		// the periodic refresh or a manual one.
		if err := h.publisher.PublishCatalogChanged(r.Context(), change); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to publish catalog change")
		}
	}

	logging.Ctx(r.Context()).Info().
		Int("courses", result.Courses).
		Int("enrollments", result.Enrollments).
		Msg("Catalog import accepted")

	respondSuccess(w, http.StatusAccepted, result, start, "")
}

// Refresh handles POST /api/v1/refresh. It rebuilds the index from the
// catalog and answers once the new index is served.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.refresher == nil {
		respondError(w, r, http.StatusServiceUnavailable, codeUnavailable, "Index refresh is not available", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.refreshTimeout)
	defer cancel()

	err := h.refresher.Refresh(ctx, RefreshTriggerAPI)
	switch {
	case errors.Is(err, recommend.ErrRefreshInProgress):
		respondError(w, r, http.StatusConflict, codeRefreshBusy, "A refresh is already in progress", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, codeRecommendation, "Index refresh failed", err)
		return
	}

	status := indexStatus(h.engine.Status())
	respondSuccess(w, http.StatusOK, status, start, status.Generation)
}
