// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

/*
Package api provides the HTTP REST API for course recommendations.

Every endpoint answers with the models.APIResponse envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "...", "query_time_ms": 2, "generation": "..."}
	}

Endpoints (chi router, see chi_router.go):

	GET  /                              health
	GET  /api/v1/health                 health plus index status
	GET  /api/v1/recommend/{learnerID}  recommendations for a learner
	GET  /api/v1/similar/{courseID}     courses similar to a course
	GET  /api/v1/status                 index, catalog, snapshot and cache status
	POST /api/v1/refresh                rebuild the index synchronously
	POST /api/v1/catalog/import         upsert courses and enrollments
	GET  /metrics                       Prometheus metrics

Query handlers never fail on an untrained index or unknown ids: an empty
recommendation list is a successful response with is_default set. Catalog
failures map to 500 RECOMMENDATION_ERROR.
*/
package api
