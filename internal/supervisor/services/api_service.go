// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tomtom215/recordsync/internal/logging"
)

// ErrAPIAddressInUse means another process, usually a second daemon,
// already serves the API address.
var ErrAPIAddressInUse = errors.New("api address already in use")

// APIServer is the part of *http.Server the service drives.
type APIServer interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// APIServerService binds the daemon API address and serves the REST API and
// outcome feed on it. Binding happens in Serve so the address actually bound
// is known, which matters for port 0 and for CLI commands that look for a
// running daemon at server.host:server.port.
type APIServerService struct {
	server          APIServer
	addr            string
	shutdownTimeout time.Duration
	listen          func(network, address string) (net.Listener, error)

	bound atomic.Pointer[string]
}

// NewAPIServerService creates the service for server listening on addr.
// Non-positive shutdownTimeout means 10s.
func NewAPIServerService(server APIServer, addr string, shutdownTimeout time.Duration) *APIServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &APIServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		listen:          net.Listen,
	}
}

// Addr returns the bound address, or "" while the API is not listening.
func (s *APIServerService) Addr() string {
	if p := s.bound.Load(); p != nil {
		return *p
	}
	return ""
}

// Serve binds the address and serves until ctx is cancelled or the server
// fails. In-flight requests, including triggered syncs, get shutdownTimeout
// to finish.
func (s *APIServerService) Serve(ctx context.Context) error {
	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s (is another recordsync daemon running?)", ErrAPIAddressInUse, s.addr)
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	bound := ln.Addr().String()
	s.bound.Store(&bound)
	defer s.bound.Store(nil)
	logging.Info().Str("component", s.String()).Str("addr", bound).Msg("API listening")

	errCh := make(chan error, 1)
	go func() {
		// Serve closes ln when it returns.
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server on %s failed: %w", bound, err)
		}
		return nil

	case <-ctx.Done():
		start := time.Now()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		<-errCh

		logging.Info().
			Str("component", s.String()).
			Dur("drain", time.Since(start)).
			Msg("API stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer.
func (s *APIServerService) String() string {
	return "api-server"
}
