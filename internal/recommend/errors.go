// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import "errors"

var (
	// ErrEncoding is returned when the encoder fails on a batch or returns
	// vectors of the wrong shape.
	ErrEncoding = errors.New("encoding failed")

	// ErrPersistence wraps snapshot save and load I/O failures.
	ErrPersistence = errors.New("index persistence failed")

	// ErrDimensionMismatch is returned when a stored snapshot was built with
	// a different embedding width than the current encoder produces.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRefreshInProgress is returned when a refresh is requested while
	// another one is still running.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrNoSource is returned by Refresh when no course source is configured.
	ErrNoSource = errors.New("course source not set")

	// ErrNoStore is returned by Save and Load when persistence is not configured.
	ErrNoStore = errors.New("snapshot store not set")

	// ErrUntrained is returned by Save when there is no index to persist.
	ErrUntrained = errors.New("index not trained")
)
