// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package websocket

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/eventsync/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// startHub runs a hub until the test finishes.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func createTestClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.GetClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	a := createTestClient(hub, 8)
	b := createTestClient(hub, 8)
	hub.Register <- a
	hub.Register <- b
	waitForClients(t, hub, 2)

	hub.BroadcastJSON(MessageTypeSyncProgress, map[string]int{"percent": 40})

	for _, c := range []*Client{a, b} {
		m := receiveMessage(t, c)
		if m.Type != MessageTypeSyncProgress {
			t.Errorf("client %d got type %q", c.id, m.Type)
		}
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	c := createTestClient(hub, 1)
	hub.Register <- c
	waitForClients(t, hub, 1)

	hub.Unregister <- c
	waitForClients(t, hub, 0)

	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after unregister")
	}

	// Unregistering an unknown client is a no-op.
	hub.Unregister <- createTestClient(hub, 1)
	waitForClients(t, hub, 0)
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	slow := createTestClient(hub, 1)
	fast := createTestClient(hub, 4)
	hub.clients[slow] = true
	hub.clients[fast] = true

	hub.broadcastToClients(Message{Type: MessageTypeSyncProgress})
	hub.broadcastToClients(Message{Type: MessageTypeSyncComplete})

	if hub.GetClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.GetClientCount())
	}
	if _, ok := hub.clients[fast]; !ok {
		t.Error("fast client should remain registered")
	}
	if len(fast.send) != 2 {
		t.Errorf("fast client buffered %d messages, want 2", len(fast.send))
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	hub := NewHub() // not running: nothing drains the broadcast channel
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastJSON(MessageTypeSyncProgress, i)
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("broadcast buffer = %d, want %d", len(hub.broadcast), cap(hub.broadcast))
	}
}

func TestHub_RunWithContextClosesClients(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ctx    func() (context.Context, context.CancelFunc)
		want   error
		reason ShutdownReason
	}{
		{
			name:   "cancelled",
			ctx:    func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			want:   context.Canceled,
			reason: ShutdownReasonContextCanceled,
		},
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 500*time.Millisecond)
			},
			want:   context.DeadlineExceeded,
			reason: ShutdownReasonContextDeadline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hub := NewHub()
			ctx, cancel := tt.ctx()
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- hub.RunWithContext(ctx) }()

			c := createTestClient(hub, 1)
			hub.Register <- c
			waitForClients(t, hub, 1)

			if tt.want == context.Canceled {
				cancel()
			}
			select {
			case err := <-done:
				if !errors.Is(err, tt.want) {
					t.Errorf("RunWithContext = %v, want %v", err, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("hub did not stop")
			}

			if hub.GetClientCount() != 0 {
				t.Errorf("clients remaining after shutdown: %d", hub.GetClientCount())
			}
			if _, ok := <-c.send; ok {
				t.Error("client send channel should be closed")
			}
			if got := getShutdownReason(ctx); got != tt.reason {
				t.Errorf("shutdown reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestMarshalMessage(t *testing.T) {
	t.Parallel()

	data, err := MarshalMessage(Message{Type: MessageTypeSyncError, Data: "sync aborted"})
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, `"type":"sync_error"`) || !strings.Contains(got, `"data":"sync aborted"`) {
		t.Errorf("MarshalMessage = %s", got)
	}
}
