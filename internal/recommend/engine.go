// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/coursematch/internal/models"
	"github.com/tomtom215/coursematch/internal/recommend/storage"
)

// CourseSource provides the full course catalog for a refresh.
// It is implemented by the catalog package.
type CourseSource interface {
	Courses(ctx context.Context) ([]models.Course, error)
}

// SnapshotStore persists index snapshots. It is implemented by storage.Store.
type SnapshotStore interface {
	Save(ctx context.Context, name string, data interface{}, meta storage.Metadata) (storage.Metadata, error)
	Load(ctx context.Context, name string, version int, target interface{}) (*storage.Metadata, error)
	Prune(ctx context.Context, name string, keep int) (int, error)
}

// Status describes the served index and the refresh history.
type Status struct {
	Trained             bool
	Generation          string
	Courses             int
	Dimensions          int
	BuiltAt             time.Time
	Refreshing          bool
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	LastError           string
	Refreshes           int64
	Queries             int64
}

// Engine serves queries against the active Index and replaces it as a
// whole on Fit, Refresh and Load. It is safe for concurrent use.
type Engine struct {
	config  *Config
	logger  zerolog.Logger
	encoder Encoder

	source CourseSource
	store  SnapshotStore

	active atomic.Pointer[Index]

	// refreshMu serializes index builds; queries never take it.
	refreshMu  sync.Mutex
	refreshing atomic.Bool

	statusMu            sync.RWMutex
	lastRefreshAt       time.Time
	lastRefreshDuration time.Duration
	lastError           string

	refreshes atomic.Int64
	queries   atomic.Int64
}

// NewEngine creates an untrained engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, enc Encoder, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if enc == nil {
		return nil, errors.New("encoder is required")
	}

	return &Engine{
		config:  cfg,
		logger:  logger.With().Str("component", "recommend").Logger(),
		encoder: enc,
	}, nil
}

// SetSource sets the course source used by Refresh.
func (e *Engine) SetSource(src CourseSource) {
	e.source = src
}

// SetStore sets the snapshot store used by Save and Load.
func (e *Engine) SetStore(store SnapshotStore) {
	e.store = store
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Active returns the index currently served, or nil when untrained.
func (e *Engine) Active() *Index {
	return e.active.Load()
}

// IsTrained reports whether an index is being served.
func (e *Engine) IsTrained() bool {
	return e.active.Load() != nil
}

// swap publishes ix as the active index.
func (e *Engine) swap(ix *Index, origin string) {
	prev := e.active.Swap(ix)
	e.logger.Info().
		Str("origin", origin).
		Str("generation", ix.Generation()).
		Str("previous_generation", prev.Generation()).
		Int("courses", ix.Len()).
		Int("dimensions", ix.Dimensions()).
		Msg("index activated")
}

// Fit builds a new index from courses and makes it active.
func (e *Engine) Fit(ctx context.Context, courses []models.Course) error {
	if !e.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	defer e.refreshMu.Unlock()

	_, err := e.build(ctx, courses, "fit")
	return err
}

// Refresh reloads the catalog from the source, builds a new index beside the
// active one, and swaps it in once complete. Queries keep using the previous
// index until then. When persistence is enabled the new index is saved;
// a save failure is logged and does not undo the swap.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	defer e.refreshMu.Unlock()

	if e.source == nil {
		return ErrNoSource
	}

	loadCtx, cancel := context.WithTimeout(ctx, e.config.RefreshTimeout)
	courses, err := e.source.Courses(loadCtx)
	cancel()
	if err != nil {
		err = fmt.Errorf("load courses: %w", err)
		e.recordRefresh(0, err)
		return err
	}

	ix, err := e.build(ctx, courses, "refresh")
	if err != nil {
		return err
	}

	if e.config.PersistOnRefresh && e.store != nil {
		if _, err := e.saveIndex(ctx, ix); err != nil {
			e.logger.Error().Err(err).Str("generation", ix.Generation()).Msg("failed to persist refreshed index")
		}
	}
	return nil
}

// build runs Fit and swaps the result in. Callers hold refreshMu.
func (e *Engine) build(ctx context.Context, courses []models.Course, origin string) (*Index, error) {
	e.refreshing.Store(true)
	defer e.refreshing.Store(false)

	start := time.Now()
	e.logger.Info().Str("origin", origin).Int("courses", len(courses)).Msg("building index")

	ix, err := Fit(ctx, e.encoder, courses)
	duration := time.Since(start)
	e.recordRefresh(duration, err)
	if err != nil {
		e.logger.Error().Err(err).Str("origin", origin).Msg("index build failed")
		return nil, err
	}
	ix.buildDuration = duration

	e.swap(ix, origin)
	e.logger.Info().
		Str("origin", origin).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("index build complete")
	return ix, nil
}

func (e *Engine) recordRefresh(duration time.Duration, err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	e.lastRefreshAt = time.Now().UTC()
	e.lastRefreshDuration = duration
	if err != nil {
		e.lastError = err.Error()
		return
	}
	e.lastError = ""
	e.refreshes.Add(1)
}

// Result is a ranked answer together with the generation of the index
// that produced it.
type Result struct {
	Generation string
	Items      []Scored
}

// Recommend returns up to n course ids ranked against the mean embedding of
// the enrolled courses, excluding the enrolled courses themselves.
func (e *Engine) Recommend(enrolled []string, n int) []string {
	return ids(e.RecommendScored(enrolled, n).Items)
}

// RecommendScored is Recommend with similarity scores. The active index is
// read once, so Generation always names the index that ranked Items.
func (e *Engine) RecommendScored(enrolled []string, n int) Result {
	e.queries.Add(1)
	ix := e.active.Load()
	return Result{Generation: ix.Generation(), Items: ix.RecommendScored(enrolled, enrolled, n)}
}

// SimilarTo returns up to n course ids most similar to id, never id itself.
func (e *Engine) SimilarTo(id string, n int) []string {
	return ids(e.SimilarToScored(id, n).Items)
}

// SimilarToScored is SimilarTo with similarity scores.
func (e *Engine) SimilarToScored(id string, n int) Result {
	e.queries.Add(1)
	ix := e.active.Load()
	return Result{Generation: ix.Generation(), Items: ix.SimilarToScored(id, n)}
}

// Save persists the active index to the snapshot store.
func (e *Engine) Save(ctx context.Context) (storage.Metadata, error) {
	ix := e.active.Load()
	if ix == nil {
		return storage.Metadata{}, ErrUntrained
	}
	return e.saveIndex(ctx, ix)
}

func (e *Engine) saveIndex(ctx context.Context, ix *Index) (storage.Metadata, error) {
	if e.store == nil {
		return storage.Metadata{}, ErrNoStore
	}

	snap := ix.Snapshot(e.config.ModelID)
	meta, err := e.store.Save(ctx, SnapshotName, snap, snap.metadata())
	if err != nil {
		return meta, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if removed, err := e.store.Prune(ctx, SnapshotName, e.config.KeepSnapshots); err != nil {
		e.logger.Warn().Err(err).Msg("failed to prune old snapshots")
	} else if removed > 0 {
		e.logger.Debug().Int("removed", removed).Msg("pruned old snapshots")
	}

	e.logger.Info().
		Str("generation", ix.Generation()).
		Int("version", meta.Version).
		Int64("size_bytes", meta.SizeBytes).
		Msg("index snapshot saved")
	return meta, nil
}

// Load restores the latest snapshot from the store and makes it active.
// A snapshot whose width differs from the encoder's is refused with
// ErrDimensionMismatch and the active index is left unchanged.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return ErrNoStore
	}

	var snap Snapshot
	meta, err := e.store.Load(ctx, SnapshotName, 0, &snap)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	ix, err := IndexFromSnapshot(&snap, e.encoder.Dimensions())
	if err != nil {
		return err
	}
	if snap.ModelID != "" && snap.ModelID != e.config.ModelID {
		e.logger.Warn().
			Str("snapshot_model", snap.ModelID).
			Str("model", e.config.ModelID).
			Msg("snapshot was built with a different model id")
	}

	e.swap(ix, fmt.Sprintf("snapshot v%d", meta.Version))
	return nil
}

// SaveFile writes the active index to a single snapshot file.
func (e *Engine) SaveFile(path string) error {
	return SaveIndex(path, e.active.Load(), e.config.ModelID)
}

// LoadFile restores an index from a single snapshot file and makes it active.
func (e *Engine) LoadFile(path string) error {
	ix, err := LoadIndex(path, e.encoder.Dimensions())
	if err != nil {
		return err
	}
	e.swap(ix, path)
	return nil
}

// Warm makes an index available at startup: it loads the latest snapshot
// and falls back to a full refresh when none is usable.
func (e *Engine) Warm(ctx context.Context) error {
	if e.store != nil {
		err := e.Load(ctx)
		if err == nil {
			return nil
		}
		if IsNotFound(err) {
			e.logger.Info().Msg("no index snapshot found, building from catalog")
		} else {
			e.logger.Error().Err(err).Msg("index snapshot refused, rebuilding from catalog")
		}
	}
	return e.Refresh(ctx)
}

// Status returns the current index and refresh status.
func (e *Engine) Status() Status {
	ix := e.active.Load()

	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	return Status{
		Trained:             ix != nil,
		Generation:          ix.Generation(),
		Courses:             ix.Len(),
		Dimensions:          ix.Dimensions(),
		BuiltAt:             ix.BuiltAt(),
		Refreshing:          e.refreshing.Load(),
		LastRefreshAt:       e.lastRefreshAt,
		LastRefreshDuration: e.lastRefreshDuration,
		LastError:           e.lastError,
		Refreshes:           e.refreshes.Load(),
		Queries:             e.queries.Load(),
	}
}
