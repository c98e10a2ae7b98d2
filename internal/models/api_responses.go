// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package models

import (
	"time"
)

// APIResponse is the envelope returned by every HTTP endpoint.
//
// Status is "success" or "error". Data carries the payload on success and
// Error carries the details on failure.
//
//	{
//	  "status": "success",
//	  "data": {"learner_id": "42", "recommendations": [...], "is_default": false},
//	  "metadata": {"timestamp": "2026-01-05T12:00:00Z", "query_time_ms": 3}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Generation  string    `json:"generation,omitempty"`
}

// APIError is a machine-readable error code plus a human-readable message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RecommendationsResponse is the payload of GET /api/v1/recommend/{learnerID}.
// IsDefault is true when no recommendation could be produced, which is a
// successful empty result rather than an error.
type RecommendationsResponse struct {
	LearnerID       string          `json:"learner_id"`
	Recommendations []CourseDetails `json:"recommendations"`
	IsDefault       bool            `json:"is_default"`
}

// SimilarCoursesResponse is the payload of GET /api/v1/similar/{courseID}.
type SimilarCoursesResponse struct {
	CourseID string          `json:"course_id"`
	Similar  []CourseDetails `json:"similar"`
}

// IndexStatus describes the index currently being served.
type IndexStatus struct {
	Trained       bool      `json:"trained"`
	Generation    string    `json:"generation,omitempty"`
	Courses       int       `json:"courses"`
	Dimensions    int       `json:"dimensions"`
	BuiltAt       time.Time `json:"built_at,omitempty"`
	Refreshing    bool      `json:"refreshing"`
	LastRefreshAt time.Time `json:"last_refresh_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Refreshes     int64     `json:"refreshes"`
	Queries       int64     `json:"queries"`
}

// HealthResponse is the payload of the health endpoints.
type HealthResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Version string      `json:"version"`
	Index   IndexStatus `json:"index"`
}
