// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/coursematch/internal/logging"
	"github.com/tomtom215/coursematch/internal/metrics"
	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend"
)

// Query kinds used as metric labels.
const (
	queryKindRecommend = "recommend"
	queryKindSimilar   = "similar"
)

// queryRequest is the validated form of a recommendation or similarity query.
type queryRequest struct {
	ID   string `json:"id" validate:"required,max=128,id"`
	TopN int    `json:"top_n" validate:"gte=1"`
}

// parseQuery reads the path id and top_n, writing a 400 and returning false
// on invalid input.
func (h *Handler) parseQuery(w http.ResponseWriter, r *http.Request, param string) (queryRequest, bool) {
	cfg := h.engine.Config()

	topN, ok := getIntParam(r, "top_n", cfg.DefaultTopN)
	if !ok {
		respondValidationError(w, &models.APIError{
			Code:    codeValidation,
			Message: "top_n must be an integer",
			Details: map[string]interface{}{"field": "top_n"},
		})
		return queryRequest{}, false
	}

	req := queryRequest{ID: chi.URLParam(r, param), TopN: topN}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return queryRequest{}, false
	}
	if req.TopN > cfg.MaxTopN {
		respondValidationError(w, &models.APIError{
			Code:    codeValidation,
			Message: fmt.Sprintf("top_n must be at most %d", cfg.MaxTopN),
			Details: map[string]interface{}{"field": "top_n", "tag": "max", "param": cfg.MaxTopN},
		})
		return queryRequest{}, false
	}
	return req, true
}

// Recommend handles GET /api/v1/recommend/{learnerID}.
//
// The learner's enrollments are read from the catalog, ranked against the
// served index and expanded to course details. A learner with no usable
// enrollments gets an empty list with is_default=true.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, ok := h.parseQuery(w, r, "learnerID")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	enrolled, err := h.catalog.EnrolledCourseIDs(ctx, req.ID)
	if err != nil {
		respondCatalogError(w, r, "Failed to load enrollments", err)
		return
	}

	res := h.engine.RecommendScored(enrolled, req.TopN)
	details, err := h.expand(ctx, res.Items)
	if err != nil {
		respondCatalogError(w, r, "Failed to load course details", err)
		return
	}
	metrics.RecordQuery(queryKindRecommend, len(details))

	logging.Ctx(r.Context()).Debug().
		Str("learner_id", sanitizeLogValue(req.ID)).
		Int("enrolled", len(enrolled)).
		Int("results", len(details)).
		Msg("Recommendations served")

	respondSuccess(w, http.StatusOK, models.RecommendationsResponse{
		LearnerID:       req.ID,
		Recommendations: details,
		IsDefault:       len(details) == 0,
	}, start, res.Generation)
}

// Similar handles GET /api/v1/similar/{courseID}.
// An unknown course or an empty result is a 404 COURSE_NOT_FOUND.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, ok := h.parseQuery(w, r, "courseID")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	res := h.engine.SimilarToScored(req.ID, req.TopN)
	details, err := h.expand(ctx, res.Items)
	if err != nil {
		respondCatalogError(w, r, "Failed to load course details", err)
		return
	}
	metrics.RecordQuery(queryKindSimilar, len(details))

	if len(details) == 0 {
		respondError(w, r, http.StatusNotFound, codeCourseNotFound, "No similar courses found", nil)
		return
	}

	respondSuccess(w, http.StatusOK, models.SimilarCoursesResponse{
		CourseID: req.ID,
		Similar:  details,
	}, start, res.Generation)
}

// expand converts ranked ids to course details in rank order. Courses
// removed from the catalog since the index was built are dropped.
func (h *Handler) expand(ctx context.Context, scored []recommend.Scored) ([]models.CourseDetails, error) {
	details := make([]models.CourseDetails, 0, len(scored))
	if len(scored) == 0 {
		return details, nil
	}

	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}

	courses, err := h.catalog.CoursesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		details = append(details, courses[i].Details())
	}
	return details, nil
}
