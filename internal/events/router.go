// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/coursematch/internal/metrics"
)

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// Retry configuration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
	}
}

// CatalogChangedHandler handles one decoded catalog change.
type CatalogChangedHandler func(ctx context.Context, change CatalogChanged) error

// Router wraps the Watermill Router with panic recovery and retries.
type Router struct {
	router  *message.Router
	bus     *Bus
	logger  watermill.LoggerAdapter
	running atomic.Bool
}

// NewRouter creates a router consuming from bus.
func NewRouter(cfg *RouterConfig, bus *Bus, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Outer to inner: recover panics, then retry with backoff.
	wmRouter.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	return &Router{router: wmRouter, bus: bus, logger: logger}, nil
}

// OnCatalogChanged registers fn for catalog change events. Undecodable
// messages are acked and dropped.
func (r *Router) OnCatalogChanged(name string, fn CatalogChangedHandler) {
	r.router.AddConsumerHandler(name, TopicCatalogChanged, r.bus.Subscriber(), func(msg *message.Message) error {
		change, err := DecodeCatalogChanged(msg)
		if err != nil {
			r.logger.Error("Dropping malformed event", err, watermill.LogFields{"uuid": msg.UUID})
			metrics.RecordEventConsumed(TopicCatalogChanged, err)
			return nil
		}
		err = fn(msg.Context(), change)
		metrics.RecordEventConsumed(TopicCatalogChanged, err)
		return err
	})
}

// Run starts the router and blocks until ctx is canceled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	return r.router.Run(ctx)
}

// Running returns a channel that closes when the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning returns whether the router is currently processing messages.
func (r *Router) IsRunning() bool {
	return r.running.Load()
}

// Close gracefully stops the router.
func (r *Router) Close() error {
	return r.router.Close()
}
