// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package progress

import (
	"context"
	"fmt"
)

// Broadcaster receives forwarded progress messages, e.g. the websocket hub.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Forwarder relays bus messages to a Broadcaster. Serve blocks until ctx is done.
type Forwarder struct {
	bus  *Bus
	sink Broadcaster
}

// NewForwarder creates a forwarder from bus to sink.
func NewForwarder(bus *Bus, sink Broadcaster) *Forwarder {
	return &Forwarder{bus: bus, sink: sink}
}

// Serve implements suture.Service.
func (f *Forwarder) Serve(ctx context.Context) error {
	messages, err := f.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("progress forwarder: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrClosed
			}
			f.sink.BroadcastJSON(WebsocketType(m.Type), m)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (f *Forwarder) String() string {
	return "progress-forwarder"
}

// WebsocketType maps a progress type to the websocket message type.
func WebsocketType(t Type) string {
	switch t {
	case TypeComplete:
		return "sync_complete"
	case TypeError:
		return "sync_error"
	default:
		return "sync_progress"
	}
}
