// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Package progress carries sync progress notifications on an in-process
// watermill GoChannel.
//
// Three message shapes are published on Topic:
//
//	{type: PROGRESS, percent, message}
//	{type: COMPLETE, data: SyncResult}
//	{type: ERROR, message}
//
// Messages reach each subscriber in publish order. Publish waits until every
// subscriber has taken the message off the bus, so a subscriber that stops
// draining its channel slows the publisher once its buffer is full. Messages
// published while nobody is subscribed are dropped.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/eventsync/internal/logging"
	"github.com/tomtom215/eventsync/internal/metrics"
	"github.com/tomtom215/eventsync/internal/models"
)

// Topic is the watermill topic progress messages are published on.
const Topic = "sync.progress"

// Type is the kind of a progress message.
type Type string

const (
	TypeProgress Type = "PROGRESS"
	TypeComplete Type = "COMPLETE"
	TypeError    Type = "ERROR"
)

// Message is one progress notification.
type Message struct {
	ID            string             `json:"id"`
	Type          Type               `json:"type"`
	Percent       int                `json:"percent"`
	Message       string             `json:"message,omitempty"`
	Data          *models.SyncResult `json:"data,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("progress bus is closed")

// Bus publishes and subscribes to progress messages.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// subscriptionBuffer is the number of decoded messages a subscriber may hold
// before Publish starts waiting on it.
const subscriptionBuffer = 64

// NewBus creates a bus backed by a non-persistent GoChannel.
// Delivery order holds only while publishes wait for the subscriber ack.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            subscriptionBuffer,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewSlogLogger(logging.NewSlogLogger()),
	)
	return &Bus{pubsub: pubsub}
}

// Publish sends m to every current subscriber.
func (b *Bus) Publish(ctx context.Context, m Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.CorrelationID == "" {
		m.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode progress message: %w", err)
	}
	msg := message.NewMessage(m.ID, payload)
	msg.Metadata.Set("type", string(m.Type))
	if m.CorrelationID != "" {
		msg.Metadata.Set("correlation_id", m.CorrelationID)
	}

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish progress message: %w", err)
	}
	metrics.ProgressMessages.WithLabelValues(string(m.Type)).Inc()
	return nil
}

// Subscribe returns decoded progress messages until ctx is done or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	raw, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Topic, err)
	}

	out := make(chan Message, subscriptionBuffer)
	go func() {
		defer close(out)
		for msg := range raw {
			var m Message
			err := json.Unmarshal(msg.Payload, &m)
			msg.Ack()
			if err != nil {
				logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable progress message")
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down the bus and closes every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Progress publishes a PROGRESS message.
func (b *Bus) Progress(ctx context.Context, percent int, msg string) {
	b.publishBestEffort(ctx, Message{Type: TypeProgress, Percent: percent, Message: msg})
}

// Complete publishes a COMPLETE message carrying result.
func (b *Bus) Complete(ctx context.Context, result *models.SyncResult) {
	m := Message{Type: TypeComplete, Percent: 100, Data: result}
	if result != nil {
		m.Message = result.Summary()
	}
	b.publishBestEffort(ctx, m)
}

// Error publishes an ERROR message.
func (b *Bus) Error(ctx context.Context, msg string) {
	b.publishBestEffort(ctx, Message{Type: TypeError, Message: msg})
}

func (b *Bus) publishBestEffort(ctx context.Context, m Message) {
	if err := b.Publish(ctx, m); err != nil {
		logging.Debug().Err(err).Str("type", string(m.Type)).Msg("Progress message not published")
	}
}
