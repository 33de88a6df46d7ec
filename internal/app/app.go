// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/recordsync/internal/cache"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/database"
	"github.com/tomtom215/recordsync/internal/events"
	"github.com/tomtom215/recordsync/internal/governor"
	"github.com/tomtom215/recordsync/internal/history"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/pgstore"
	"github.com/tomtom215/recordsync/internal/schema"
	recsync "github.com/tomtom215/recordsync/internal/sync"
	"github.com/tomtom215/recordsync/internal/upstream"
	"github.com/tomtom215/recordsync/internal/wal"
	ws "github.com/tomtom215/recordsync/internal/websocket"
)

// Store is the local cache store as the process uses it. Implemented by
// *database.DB and *pgstore.Store.
type Store interface {
	recsync.Store
	recsync.SyncStateRecorder
	Ping(ctx context.Context) error
	SyncStates(ctx context.Context) ([]schema.SyncState, error)
	Count(ctx context.Context, table string) (int64, error)
	Close() error
}

// Options selects the optional parts of the component graph.
type Options struct {
	// Hub receives every outcome when set.
	Hub *ws.Hub

	// EmbeddedNATS allows starting the in-process NATS server when the
	// configuration asks for one. One-shot commands leave it off.
	EmbeddedNATS bool

	// DurableEvents routes outcome events through the WAL when the
	// configuration enables it. The WAL is opened exclusively, so only the
	// daemon sets this.
	DurableEvents bool

	// SkipLockedHistory continues without outcome history when another
	// process (the daemon) holds the history directory.
	SkipLockedHistory bool
}

// Components is the wired component graph. Fields for disabled features
// are nil.
type Components struct {
	Config       *config.Config
	Governor     *governor.Governor
	Upstream     *upstream.BreakerClient
	Cache        *cache.Cache
	Store        Store
	History      *history.Store
	NATSServer   *events.EmbeddedServer
	Publisher    *events.Publisher
	WAL          *wal.BadgerWAL
	WALRetry     *wal.RetryLoop
	Orchestrator *recsync.Orchestrator
	Manager      *recsync.Manager

	closers []func() error
}

// Build wires every component from cfg. On error, anything already
// opened is closed again.
func Build(ctx context.Context, cfg *config.Config, opts Options) (c *Components, err error) {
	c = &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.Governor = governor.New(governor.Config{
		MaxPerSecond: cfg.Upstream.MaxRequestsPerSecond,
		SafetyMargin: cfg.Upstream.SafetyMargin,
	})
	c.Upstream = upstream.NewBreakerClient(cfg.Upstream)
	c.Cache = cache.New(cfg.Cache.DefaultTTL)

	if c.Store, err = OpenStore(ctx, &cfg.Database); err != nil {
		return c, err
	}
	c.closers = append(c.closers, c.Store.Close)

	orchOpts := []recsync.OrchestratorOption{recsync.WithCache(c.Cache)}

	if cfg.History.Enabled {
		c.History, err = history.Open(cfg.History)
		switch {
		case errors.Is(err, history.ErrLocked) && opts.SkipLockedHistory:
			logging.Warn().Err(err).Msg("Outcome history is in use, this run will not be recorded")
			c.History, err = nil, nil
		case err != nil:
			return c, fmt.Errorf("open history: %w", err)
		default:
			c.closers = append(c.closers, c.History.Close)
			orchOpts = append(orchOpts, recsync.WithHistory(c.History))
		}
	}

	if cfg.NATS.Enabled {
		natsCfg := cfg.NATS
		if natsCfg.EmbeddedServer && opts.EmbeddedNATS {
			if c.NATSServer, err = events.NewEmbeddedServer(natsCfg); err != nil {
				return c, fmt.Errorf("start embedded NATS server: %w", err)
			}
			natsCfg.URL = c.NATSServer.ClientURL()
			srv := c.NATSServer
			c.closers = append(c.closers, func() error { return srv.Shutdown(context.Background()) })
		}
		if c.Publisher, err = events.NewNATSPublisher(natsCfg, logging.NewWatermillLogger()); err != nil {
			return c, fmt.Errorf("connect NATS publisher: %w", err)
		}
		c.closers = append(c.closers, c.Publisher.Close)

		if cfg.WAL.Enabled && opts.DurableEvents {
			if c.WAL, err = wal.Open(cfg.WAL); err != nil {
				return c, fmt.Errorf("open event WAL: %w", err)
			}
			c.closers = append(c.closers, c.WAL.Close)
			durable := events.NewDurablePublisher(c.Publisher, c.WAL)
			c.WALRetry = wal.NewRetryLoop(c.WAL, durable.Republish, cfg.WAL)
			orchOpts = append(orchOpts, recsync.WithPublisher(durable))
		} else {
			orchOpts = append(orchOpts, recsync.WithPublisher(c.Publisher))
		}
	}

	if opts.Hub != nil {
		orchOpts = append(orchOpts, recsync.WithBroadcaster(opts.Hub))
	}

	c.Orchestrator = recsync.NewOrchestrator(
		recsync.NewOrchestratorConfig(cfg),
		c.Upstream,
		c.Governor,
		c.Store,
		orchOpts...,
	)
	c.Manager = recsync.NewManager(c.Orchestrator, cfg)
	return c, nil
}

// OpenStore opens the local store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "duckdb":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("open duckdb store: %w", err)
		}
		return db, nil
	case "postgres":
		st, err := pgstore.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close releases components in reverse order of creation. Safe to call
// more than once.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
