// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/recordsync/internal/logging"
)

// Handler upgrades HTTP requests to the outcome feed.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	origins  []string
}

// NewHandler returns a Handler accepting connections from allowedOrigins.
// "*" allows any origin. Requests without an Origin header are rejected
// unless allowedOrigins is empty, which is the case in tests and for
// non-browser operator tooling on localhost.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub, origins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// ServeHTTP upgrades the connection and registers the client with the hub.
// The upgrader writes the error response itself when the handshake fails.
//
// ?collection=permits,inspections (or the parameter repeated) limits the
// feed to those collections.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	collections := subscribedCollections(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, collections...)
	if len(collections) > 0 {
		logging.Debug().Uint64("client_id", client.ID()).Strs("collections", collections).Msg("outcome feed subscription")
	}
	h.hub.Register <- client
	client.Start()
}

func subscribedCollections(r *http.Request) []string {
	var names []string
	for _, v := range r.URL.Query()["collection"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, sanitizeLogValue(name))
			}
		}
	}
	return names
}

// sanitizeLogValue strips control characters and caps the length so a
// client-supplied header cannot forge log lines.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
