// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveHub upgrades every request and attaches the connection to hub.
func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestClient_ReceivesBroadcast(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitForClients(t, hub, 1)

	hub.BroadcastJSON(MessageTypeSyncComplete, map[string]int{"added": 3})

	m := readMessage(t, conn)
	if m.Type != MessageTypeSyncComplete {
		t.Fatalf("type = %q, want %q", m.Type, MessageTypeSyncComplete)
	}
	data, ok := m.Data.(map[string]interface{})
	if !ok || data["added"] != float64(3) {
		t.Errorf("data = %#v", m.Data)
	}
}

func TestClient_PingPong(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if m := readMessage(t, conn); m.Type != MessageTypePong {
		t.Errorf("type = %q, want pong", m.Type)
	}
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitForClients(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = conn.Close()

	waitForClients(t, hub, 0)
}

func TestNewClient_IDsIncrease(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := NewClient(hub, nil)
	b := NewClient(hub, nil)
	if b.ID() <= a.ID() {
		t.Errorf("IDs not increasing: %d then %d", a.ID(), b.ID())
	}
}
