// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package websocket

import (
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// The feed is server to client only, so anything larger than a close
	// frame from the client is suspect.
	maxClientFrame = 512
)

// clientIDCounter hands out monotonically increasing client IDs so the hub
// can iterate clients in a stable order.
var clientIDCounter atomic.Uint64

// Client is one subscriber to the outcome feed. An empty collections set
// subscribes to every collection.
type Client struct {
	id          uint64
	hub         *Hub
	conn        *websocket.Conn
	send        chan Message
	collections map[string]struct{}
}

// NewClient creates a Client subscribed to the named collections, or to all
// of them when none are given. Register it with the hub, then call Start.
func NewClient(hub *Hub, conn *websocket.Conn, collections ...string) *Client {
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, broadcastBuffer),
	}
	for _, name := range collections {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if c.collections == nil {
			c.collections = make(map[string]struct{})
		}
		c.collections[name] = struct{}{}
	}
	return c
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// wants reports whether msg belongs on this client's feed. Messages not
// scoped to a collection go to everyone.
func (c *Client) wants(msg Message) bool {
	if len(c.collections) == 0 || msg.collection == "" {
		return true
	}
	_, ok := c.collections[msg.collection]
	return ok
}

// drain consumes client frames until the connection fails. Data frames are
// discarded; reading is only needed so gorilla processes pong and close
// control frames.
func (c *Client) drain() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientFrame)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("outcome feed client went away")
			}
			return
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			return
		}
		metrics.WebSocketFramesIgnored.Inc()
	}
}

// feed writes queued outcomes and keepalive pings to the connection.
func (c *Client) feed() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// Hub dropped us or is shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}

			payload, err := MarshalMessage(message)
			if err != nil {
				logging.Warn().Err(err).Str("message_type", message.Type).Msg("failed to encode feed message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write feed message")
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Start begins feeding the client and watching for its disconnect.
func (c *Client) Start() {
	go c.feed()
	go c.drain()
}
