// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package recommend implements content-based course recommendations over
// sentence embeddings.
//
// # Architecture
//
//   - Encoder: turns course text into fixed-width vectors (see package embedding)
//   - Index: immutable snapshot of courses and their embeddings, built by Fit
//   - Profile: mean of a learner's enrolled course embeddings
//   - Ranking: cosine similarity with exclusions and a stable top-N selection
//   - Engine: serves the active Index and replaces it atomically on Refresh
//
// # Usage
//
//	engine, err := recommend.NewEngine(cfg, encoder, logger)
//	engine.SetSource(catalog)
//	engine.SetStore(store)
//
//	if err := engine.Refresh(ctx); err != nil { ... }
//
//	ids := engine.Recommend(enrolledIDs, 5)
//	similar := engine.SimilarTo(courseID, 5)
//
// # Thread Safety
//
// An Index never changes after Fit returns. The Engine publishes indexes
// through an atomic pointer, so queries always run against one complete
// generation while a refresh builds the next one.
//
// Queries against an untrained engine or for unknown ids return empty
// results, never errors. Only infrastructure failures (model loading,
// encoding, storage I/O, dimension mismatch) are reported as errors.
package recommend
