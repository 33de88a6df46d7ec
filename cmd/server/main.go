// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/recordsync/internal/api"
	"github.com/tomtom215/recordsync/internal/app"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/history"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/supervisor"
	"github.com/tomtom215/recordsync/internal/supervisor/services"
	recsync "github.com/tomtom215/recordsync/internal/sync"
	ws "github.com/tomtom215/recordsync/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const historyGCInterval = time.Hour

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("recordsync stopped with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("version", version).
		Str("upstream", cfg.Upstream.URL).
		Str("db_driver", cfg.Database.Driver).
		Int("collections", len(cfg.Collections)).
		Msg("Starting recordsync with supervisor tree")

	hub := ws.NewHub()

	components, err := app.Build(ctx, cfg, app.Options{Hub: hub, EmbeddedNATS: true, DurableEvents: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing components")
		}
	}()

	probeTimeout := cfg.Upstream.Timeout
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	if err := components.Upstream.Ping(probeCtx); err != nil {
		logging.Warn().Err(err).Msg("Upstream not reachable at startup (syncs will retry)")
	} else {
		logging.Info().Msg("Connected to upstream successfully")
	}
	cancel()

	components.Manager.SetOnRunCompleted(func(outcomes []recsync.Outcome) {
		// Previews must not outlive the data they were fetched alongside.
		components.Cache.InvalidateAll()
		if failed := recsync.Failed(outcomes); len(failed) > 0 {
			names := make([]string, len(failed))
			for i, o := range failed {
				names[i] = o.Collection
			}
			logging.Warn().Strs("collections", names).Msg("Sync run finished with failures")
		}
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	if components.History != nil {
		tree.AddStorageService(history.NewGCService(components.History, historyGCInterval))
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if components.NATSServer != nil {
		tree.AddMessagingService(services.NewNATSServerService(components.NATSServer, cfg.Server.ShutdownTimeout))
	}
	if components.WALRetry != nil {
		tree.AddMessagingService(components.WALRetry)
	}
	tree.AddMessagingService(services.NewSyncService(components.Manager))

	tree.AddAPIService(services.NewAPIServerService(newHTTPServer(cfg, components, hub), cfg.Server.Addr(), cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting supervisor tree...")
	return tree.Run(ctx)
}

func newHTTPServer(cfg *config.Config, c *app.Components, hub *ws.Hub) *http.Server {
	deps := api.Dependencies{
		Sync:     c.Manager,
		Preview:  c.Orchestrator,
		Store:    c.Store,
		Upstream: c.Upstream,
		Governor: c.Governor,
		Version:  version,
	}
	// A nil *history.Store must not become a non-nil interface.
	if c.History != nil {
		deps.History = c.History
	}

	router := api.NewRouter(
		api.NewHandler(deps),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)),
		ws.NewHandler(hub, cfg.Security.CORSOrigins),
	)

	return &http.Server{
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Triggered syncs run inside the request.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}
