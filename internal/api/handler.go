// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/recordsync/internal/cache"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/schema"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

// SyncRunner triggers and reports runs. Implemented by *sync.Manager.
type SyncRunner interface {
	TriggerSync(ctx context.Context, names ...string) ([]recsync.Outcome, error)
	LastRun() ([]recsync.Outcome, time.Time)
	Collections() []config.CollectionConfig
	InProgress() bool
}

// RecordPreviewer fetches normalized records without writing them.
// Implemented by *sync.Orchestrator.
type RecordPreviewer interface {
	Preview(ctx context.Context, name string) ([]record.Record, error)
	CacheStats() (cache.Stats, bool)
}

// OutcomeLister reads persisted outcomes. Implemented by *history.Store.
type OutcomeLister interface {
	List(ctx context.Context, collection string, limit int) ([]recsync.Outcome, error)
}

// StateStore is the local store as seen by the API. Implemented by
// *database.DB and *pgstore.Store.
type StateStore interface {
	Ping(ctx context.Context) error
	SyncStates(ctx context.Context) ([]schema.SyncState, error)
}

// UpstreamProbe checks the external API. Implemented by
// *upstream.BreakerClient.
type UpstreamProbe interface {
	Ping(ctx context.Context) error
	State() string
}

// WindowReporter exposes the request governor's window. Implemented by
// *governor.Governor.
type WindowReporter interface {
	Len() int
	Limit() int
}

// Dependencies wires a Handler. Sync, Preview and Store are required; the
// rest are optional and their endpoints degrade when absent.
type Dependencies struct {
	Sync     SyncRunner
	Preview  RecordPreviewer
	Store    StateStore
	History  OutcomeLister
	Upstream UpstreamProbe
	Governor WindowReporter
	Version  string
}

// Handler serves the operator API.
type Handler struct {
	sync      SyncRunner
	preview   RecordPreviewer
	store     StateStore
	history   OutcomeLister
	upstream  UpstreamProbe
	governor  WindowReporter
	version   string
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		sync:      deps.Sync,
		preview:   deps.Preview,
		store:     deps.Store,
		history:   deps.History,
		upstream:  deps.Upstream,
		governor:  deps.Governor,
		version:   version,
		startTime: time.Now(),
	}
}
