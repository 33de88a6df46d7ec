// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
)

// ErrNATSServerStopped is returned when the embedded server is found not
// running at start. It cannot be restarted in place.
var ErrNATSServerStopped = errors.New("embedded NATS server is not running")

// NATSServer is the lifecycle of *events.EmbeddedServer, which starts in
// its constructor.
type NATSServer interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// NATSServerService owns the shutdown of the embedded NATS server. The
// server is started before the tree so the outcome publisher can connect
// during wiring; this service stops it when the tree stops.
type NATSServerService struct {
	server          NATSServer
	shutdownTimeout time.Duration
	name            string
}

// NewNATSServerService creates the service. Non-positive timeouts mean 10s.
func NewNATSServerService(server NATSServer, shutdownTimeout time.Duration) *NATSServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-server",
	}
}

// Serve waits for ctx and then shuts the server down. A server that is
// already stopped is reported with suture.ErrDoNotRestart so suture does
// not spin on it.
func (s *NATSServerService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, ErrNATSServerStopped)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("NATS server shutdown failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *NATSServerService) String() string {
	return s.name
}
