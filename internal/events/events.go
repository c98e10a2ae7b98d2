// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package events carries catalog change notifications between the API and
// the index refresh service over an in-process Watermill pub/sub.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/coursematch/internal/metrics"
)

// TopicCatalogChanged is published after courses or enrollments are written.
const TopicCatalogChanged = "catalog.changed"

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// CatalogChanged describes a catalog write.
type CatalogChanged struct {
	Reason      string    `json:"reason"`
	Courses     int       `json:"courses"`
	Enrollments int       `json:"enrollments"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CoursesChanged reports whether the write touched the course collection.
// Enrollment-only writes do not change the index.
func (c *CatalogChanged) CoursesChanged() bool {
	return c.Courses > 0
}

// Bus is the in-process publisher and subscriber.
type Bus struct {
	pubsub *gochannel.GoChannel
	closed atomic.Bool
}

// NewBus creates an in-memory bus. Messages published while no handler is
// subscribed are dropped.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
	}
}

// Publisher returns the underlying Watermill publisher.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// Subscriber returns the underlying Watermill subscriber.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// PublishCatalogChanged publishes a catalog change event.
func (b *Bus) PublishCatalogChanged(ctx context.Context, change CatalogChanged) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal catalog change: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set("reason", change.Reason)

	if err := b.pubsub.Publish(TopicCatalogChanged, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicCatalogChanged, err)
	}
	metrics.EventsPublished.WithLabelValues(TopicCatalogChanged).Inc()
	return nil
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}

// DecodeCatalogChanged parses a catalog change message.
func DecodeCatalogChanged(msg *message.Message) (CatalogChanged, error) {
	var change CatalogChanged
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		return change, fmt.Errorf("decode catalog change %s: %w", msg.UUID, err)
	}
	return change, nil
}
