// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package services adapts long-running components to suture.Service:
// the HTTP server, the Watermill event router and the index refresh loop.
package services
