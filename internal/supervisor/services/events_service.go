// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// EventRouter matches the *events.Router lifecycle.
type EventRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// EventRouterService runs the Watermill router under supervision.
//
// A Watermill router cannot be started twice, so a router that stops on its
// own is reported with suture.ErrDoNotRestart instead of being restarted.
// Periodic and manual refreshes keep working without it.
type EventRouterService struct {
	router EventRouter
	logger zerolog.Logger
	name   string
}

// NewEventRouterService creates the router service. Handlers must be
// registered on the router before the service starts.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEventRouterService(router EventRouter, logger zerolog.Logger) *EventRouterService {
	return &EventRouterService{
		router: router,
		logger: logger.With().Str("service", "event-router").Logger(),
		name:   "event-router",
	}
}

// Serve implements suture.Service.
func (s *EventRouterService) Serve(ctx context.Context) error {
	s.logger.Info().Msg("event router starting")

	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		s.logger.Info().Msg("event router stopped")
		return ctx.Err()
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("event router stopped unexpectedly")
		return fmt.Errorf("event router: %w: %w", err, suture.ErrDoNotRestart)
	}
	s.logger.Warn().Msg("event router closed")
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer for suture logs.
func (s *EventRouterService) String() string {
	return s.name
}
