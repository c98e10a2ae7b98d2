// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/coursematch/internal/events"
	"github.com/tomtom215/coursematch/internal/metrics"
	"github.com/tomtom215/coursematch/internal/recommend"
)

// Refresh triggers used as metric labels.
const (
	TriggerSchedule = "schedule"
	TriggerEvent    = "event"
	TriggerStartup  = "startup"
)

// IndexEngine is the subset of *recommend.Engine the refresh loop drives.
type IndexEngine interface {
	Refresh(ctx context.Context) error
	Warm(ctx context.Context) error
	Status() recommend.Status
}

// RefreshServiceConfig holds refresh scheduling settings.
type RefreshServiceConfig struct {
	// Interval rebuilds the index periodically. 0 disables the schedule.
	Interval time.Duration

	// MinInterval is the minimum spacing between event-driven refreshes.
	MinInterval time.Duration

	// Timeout bounds a single refresh.
	Timeout time.Duration

	// RefreshOnEnrollments also refreshes on enrollment-only changes.
	RefreshOnEnrollments bool
}

// RefreshService keeps the served index in step with the catalog.
//
// Refreshes come from three places: the periodic schedule, catalog change
// events (coalesced and throttled by a token bucket) and synchronous calls
// to Refresh from the API. All of them go through engine.Refresh, which
// rejects overlapping builds with recommend.ErrRefreshInProgress.
type RefreshService struct {
	engine  IndexEngine
	config  RefreshServiceConfig
	limiter *rate.Limiter
	pending chan string
	logger  zerolog.Logger
	name    string
}

// NewRefreshService creates the refresh loop.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRefreshService(engine IndexEngine, cfg RefreshServiceConfig, logger zerolog.Logger) *RefreshService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	return &RefreshService{
		engine:  engine,
		config:  cfg,
		limiter: rate.NewLimiter(limit, 1),
		pending: make(chan string, 1),
		logger:  logger.With().Str("service", "refresh").Logger(),
		name:    "refresh-service",
	}
}

// Refresh rebuilds the index now and waits for it. It is not throttled.
func (s *RefreshService) Refresh(ctx context.Context, trigger string) error {
	return s.run(ctx, trigger)
}

// Warm loads the latest snapshot or builds the index from the catalog.
func (s *RefreshService) Warm(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	err := s.engine.Warm(ctx)
	metrics.RecordRefresh(TriggerStartup, time.Since(start), err, errors.Is(err, recommend.ErrRefreshInProgress))
	s.recordIndexSize()
	return err
}

// Trigger queues an asynchronous refresh. Triggers arriving while one is
// already queued are merged into it. Returns false when merged.
func (s *RefreshService) Trigger(trigger string) bool {
	select {
	case s.pending <- trigger:
		return true
	default:
		return false
	}
}

// HandleCatalogChanged is an events.CatalogChangedHandler that queues a
// refresh for changes that affect the index.
func (s *RefreshService) HandleCatalogChanged(_ context.Context, change events.CatalogChanged) error {
	if !change.CoursesChanged() && !s.config.RefreshOnEnrollments {
		s.logger.Debug().
			Str("reason", change.Reason).
			Int("enrollments", change.Enrollments).
			Msg("catalog change does not affect the index")
		return nil
	}

	if s.Trigger(TriggerEvent) {
		s.logger.Debug().Str("reason", change.Reason).Int("courses", change.Courses).Msg("refresh queued")
	}
	return nil
}

// Serve implements suture.Service.
func (s *RefreshService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("min_interval", s.config.MinInterval).
		Msg("refresh service starting")

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refresh service shutting down")
			return ctx.Err()

		case <-tick:
			s.runLogged(ctx, TriggerSchedule)

		case trigger := <-s.pending:
			if err := s.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
			if s.runLogged(ctx, trigger) {
				// A build already running may predate the change.
				s.retryLater(ctx, trigger)
			}
		}
	}
}

// runLogged runs a refresh and logs failures. Returns true when the
// refresh was rejected because another was running.
func (s *RefreshService) runLogged(ctx context.Context, trigger string) (busy bool) {
	err := s.run(ctx, trigger)
	switch {
	case errors.Is(err, recommend.ErrRefreshInProgress):
		s.logger.Debug().Str("trigger", trigger).Msg("refresh skipped, another is running")
		return true
	case err != nil && ctx.Err() == nil:
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("refresh failed, previous index still served")
	}
	return false
}

// retryLater requeues trigger once the throttle interval has passed.
func (s *RefreshService) retryLater(ctx context.Context, trigger string) {
	delay := s.config.MinInterval
	if delay < time.Second {
		delay = time.Second
	}
	time.AfterFunc(delay, func() {
		if ctx.Err() == nil {
			s.Trigger(trigger)
		}
	})
}

func (s *RefreshService) run(ctx context.Context, trigger string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	err := s.engine.Refresh(ctx)
	duration := time.Since(start)

	busy := errors.Is(err, recommend.ErrRefreshInProgress)
	metrics.RecordRefresh(trigger, duration, err, busy)
	if err != nil {
		return err
	}

	s.recordIndexSize()
	s.logger.Info().
		Str("trigger", trigger).
		Dur("duration", duration).
		Msg("index refreshed")
	return nil
}

func (s *RefreshService) recordIndexSize() {
	st := s.engine.Status()
	metrics.SetIndexSize(st.Courses, st.Dimensions)
}

// String implements fmt.Stringer for suture logs.
func (s *RefreshService) String() string {
	return s.name
}
