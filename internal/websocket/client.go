// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/eventsync/internal/logging"
)

// Connection timing. Keepalive pings go out at 90% of the pong deadline.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 * 1024 // inbound frames are only app-level pings
	sendBuffer     = 64
)

var clientIDCounter atomic.Uint64

// Client is one subscriber to the progress stream.
type Client struct {
	id          uint64
	hub         *Hub
	conn        *websocket.Conn
	send        chan Message
	connectedAt time.Time
}

// NewClient registers nothing yet; call Start after handing the client to hub.Register.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:          clientIDCounter.Add(1),
		hub:         hub,
		conn:        conn,
		send:        make(chan Message, sendBuffer),
		connectedAt: time.Now(),
	}
}

// ID returns the client's process-unique, increasing identifier.
func (c *Client) ID() uint64 { return c.id }

// Start runs the read and write loops in their own goroutines.
func (c *Client) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// readLoop consumes inbound frames until the connection fails. The only
// message acted on is an application ping, answered with a pong.
func (c *Client) readLoop() {
	defer c.disconnect()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.extendReadDeadline(); err != nil {
		logging.Error().Err(err).Uint64("client_id", c.id).Msg("Failed to set websocket read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.extendReadDeadline() })

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("Unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			c.trySend(Message{Type: MessageTypePong})
		}
	}
}

func (c *Client) disconnect() {
	c.hub.Unregister <- c
	_ = c.conn.Close()
	logging.Debug().
		Uint64("client_id", c.id).
		Dur("connected_for", time.Since(c.connectedAt)).
		Msg("Websocket client disconnected")
}

func (c *Client) extendReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// trySend queues msg unless the buffer is full.
func (c *Client) trySend(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// writeLoop drains the send buffer and emits keepalive pings. A closed send
// channel means the hub dropped the client.
func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, open := <-c.send:
			if !open {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("Websocket write failed")
				return
			}
		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write sends a control or raw frame under the write deadline.
func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}
