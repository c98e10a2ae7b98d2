// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/coursematch/internal/metrics"
	"github.com/tomtom215/coursematch/internal/models"
)

// ErrUnavailable is returned while the read breaker is open.
var ErrUnavailable = errors.New("catalog unavailable")

// BreakerConfig configures the circuit breaker around catalog reads.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed (0 = never).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the breaker settings used by the server.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "catalog",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

type reader interface {
	Courses(ctx context.Context) ([]models.Course, error)
	CoursesByID(ctx context.Context, ids []string) ([]models.Course, error)
	EnrolledCourseIDs(ctx context.Context, learnerID string) ([]string, error)
}

// Guarded is a Catalog whose reads pass through a circuit breaker. Once
// DuckDB fails repeatedly, reads return ErrUnavailable without touching
// the database until the breaker half-opens again. Writes are not guarded.
type Guarded struct {
	*Catalog
	reads reader
	cb    *gobreaker.CircuitBreaker[any]
}

// NewGuarded wraps c with a read breaker.
func NewGuarded(c *Catalog, cfg BreakerConfig, logger zerolog.Logger) *Guarded {
	g := newGuarded(c, cfg, logger)
	g.Catalog = c
	return g
}

func newGuarded(r reader, cfg BreakerConfig, logger zerolog.Logger) *Guarded {
	if cfg.Name == "" {
		cfg.Name = "catalog"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up says nothing about the database.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Catalog circuit breaker state changed")
		},
	}
	metrics.SetBreakerState(cfg.Name, int(gobreaker.StateClosed))

	return &Guarded{
		reads: r,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the breaker state ("closed", "half-open" or "open").
func (g *Guarded) State() string {
	return g.cb.State().String()
}

// Courses returns every course in insertion order.
func (g *Guarded) Courses(ctx context.Context) ([]models.Course, error) {
	return execute(g.cb, func() ([]models.Course, error) {
		return g.reads.Courses(ctx)
	})
}

// CoursesByID returns the requested courses in the order of ids.
func (g *Guarded) CoursesByID(ctx context.Context, ids []string) ([]models.Course, error) {
	return execute(g.cb, func() ([]models.Course, error) {
		return g.reads.CoursesByID(ctx, ids)
	})
}

// EnrolledCourseIDs returns the learner's enrolled course ids.
func (g *Guarded) EnrolledCourseIDs(ctx context.Context, learnerID string) ([]string, error) {
	return execute(g.cb, func() ([]string, error) {
		return g.reads.EnrolledCourseIDs(ctx, learnerID)
	})
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return zero, err
	}
	v, _ := res.(T) //nolint:errcheck // nil slices come back as untyped nil
	return v, nil
}
