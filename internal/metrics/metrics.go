// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog (DuckDB) metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursematch_duckdb_query_duration_seconds",
			Help:    "Duration of catalog queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_duckdb_query_errors_total",
			Help: "Total number of failed catalog queries",
		},
		[]string{"operation", "table"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursematch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	// Recommendation query metrics
	RecommendQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_recommend_queries_total",
			Help: "Total number of recommendation queries by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: recommend|similar, outcome: results|empty
	)

	RecommendResultSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursematch_recommend_result_size",
			Help:    "Number of course ids returned per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"kind"},
	)

	// Index lifecycle metrics
	IndexRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursematch_index_refresh_duration_seconds",
			Help:    "Duration of index refreshes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	IndexRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_index_refreshes_total",
			Help: "Total number of index refreshes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	IndexCourses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursematch_index_courses",
			Help: "Number of courses in the served index",
		},
	)

	IndexDimensions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursematch_index_dimensions",
			Help: "Embedding width of the served index",
		},
	)

	IndexLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursematch_index_last_success_timestamp_seconds",
			Help: "Unix time of the last successful index refresh",
		},
	)

	// Embedding metrics
	EncodeBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursematch_encode_batch_duration_seconds",
			Help:    "Duration of encoder batch calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	EncodedTexts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursematch_encoded_texts_total",
			Help: "Total number of texts run through the embedding model",
		},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursematch_embedding_cache_hits_total",
			Help: "Total number of embeddings served from the cache",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursematch_embedding_cache_misses_total",
			Help: "Total number of embeddings not found in the cache",
		},
	)

	// Event metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_events_published_total",
			Help: "Total number of events published by topic",
		},
		[]string{"topic"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursematch_events_consumed_total",
			Help: "Total number of events consumed by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursematch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordDBQuery records a catalog query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordQuery records a recommendation query and its result size.
func RecordQuery(kind string, results int) {
	outcome := "results"
	if results == 0 {
		outcome = "empty"
	}
	RecommendQueries.WithLabelValues(kind, outcome).Inc()
	RecommendResultSize.WithLabelValues(kind).Observe(float64(results))
}

// RecordRefresh records the outcome of an index refresh. busy marks a
// request rejected because another refresh was running.
func RecordRefresh(trigger string, duration time.Duration, err error, busy bool) {
	switch {
	case busy:
		IndexRefreshes.WithLabelValues(trigger, "busy").Inc()
	case err != nil:
		IndexRefreshes.WithLabelValues(trigger, "error").Inc()
	default:
		IndexRefreshes.WithLabelValues(trigger, "success").Inc()
		IndexRefreshDuration.Observe(duration.Seconds())
		IndexLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// SetIndexSize updates the served index gauges.
func SetIndexSize(courses, dimensions int) {
	IndexCourses.Set(float64(courses))
	IndexDimensions.Set(float64(dimensions))
}

// RecordEncodeBatch records one encoder batch call.
func RecordEncodeBatch(texts int, duration time.Duration) {
	EncodeBatchDuration.Observe(duration.Seconds())
	EncodedTexts.Add(float64(texts))
}

// RecordCacheLookup records embedding cache hits and misses.
func RecordCacheLookup(hits, misses int) {
	EmbeddingCacheHits.Add(float64(hits))
	EmbeddingCacheMisses.Add(float64(misses))
}

// RecordEventConsumed records the handling of one event.
func RecordEventConsumed(topic string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EventsConsumed.WithLabelValues(topic, outcome).Inc()
}

// ErrorOutcome classifies err for low-cardinality labels.
func ErrorOutcome(err error, known ...error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "other"
}

// SetBreakerState records a circuit breaker state transition.
func SetBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
