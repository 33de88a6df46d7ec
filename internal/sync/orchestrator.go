// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/recordsync/internal/cache"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/retry"
	"github.com/tomtom215/recordsync/internal/schema"
	"github.com/tomtom215/recordsync/internal/upstream"
)

// MessageTypeSyncOutcome is the websocket message type for outcomes.
const MessageTypeSyncOutcome = "sync_outcome"

// DefaultMaxConcurrent bounds how many collections sync at once.
const DefaultMaxConcurrent = 2

// Store is the local cache the orchestrator writes to. Upsert must apply
// the whole batch atomically, replacing rows with the same id.
type Store interface {
	EnsureTable(ctx context.Context, spec schema.TableSpec) error
	Upsert(ctx context.Context, table string, columns []string, rows [][]any) (int, error)
}

// SyncStateRecorder is implemented by stores that track per-collection
// sync state.
type SyncStateRecorder interface {
	RecordSyncState(ctx context.Context, collection string, at time.Time, rows int) error
}

// HistoryRecorder persists outcomes.
type HistoryRecorder interface {
	Append(ctx context.Context, o Outcome) error
}

// OutcomePublisher publishes outcomes to an event bus.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, o Outcome) error
}

// OutcomeBroadcaster pushes outcomes to connected clients. Implemented by
// internal/websocket.Hub.
type OutcomeBroadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// OrchestratorConfig holds the settings the orchestrator needs from the
// application configuration.
type OrchestratorConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	PageDelay     time.Duration
	MaxConcurrent int

	// Collections is used to resolve names for Preview.
	Collections []config.CollectionConfig
}

// NewOrchestratorConfig extracts orchestrator settings from cfg.
func NewOrchestratorConfig(cfg *config.Config) OrchestratorConfig {
	return OrchestratorConfig{
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryDelay:    cfg.Sync.RetryDelay,
		RetryMaxDelay: cfg.Sync.RetryMaxDelay,
		PageDelay:     cfg.Upstream.PageDelay,
		MaxConcurrent: cfg.Sync.MaxConcurrentCollections,
		Collections:   cfg.Collections,
	}
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithCache enables the result cache for Preview.
func WithCache(c *cache.Cache) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rawCache = c
		o.preview = cache.NewTyped[[]record.Record](c)
	}
}

// WithHistory records every outcome.
func WithHistory(h HistoryRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.history = h }
}

// WithPublisher publishes every outcome.
func WithPublisher(p OutcomePublisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithBroadcaster broadcasts every outcome.
func WithBroadcaster(b OutcomeBroadcaster) OrchestratorOption {
	return func(o *Orchestrator) { o.broadcaster = b }
}

// WithClock replaces time.Now for outcome timestamps and durations.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the cancellable sleep used for page delays and retry
// backoff.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
		o.fetcher.sleep = sleep
	}
}

// Orchestrator syncs collections from upstream into the local store. It
// never returns an error: every failure becomes part of the Outcome.
//
// Thread Safety: safe for concurrent use. Shared state lives in the
// governor and the cache, both of which synchronize internally.
type Orchestrator struct {
	cfg         OrchestratorConfig
	fetcher     *Fetcher
	store       Store
	rawCache    *cache.Cache
	preview     *cache.Typed[[]record.Record]
	history     HistoryRecorder
	publisher   OutcomePublisher
	broadcaster OutcomeBroadcaster
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires an orchestrator around an upstream client, the
// request governor and the local store.
func NewOrchestrator(cfg OrchestratorConfig, client PageGetter, governor Admitter, store Store, opts ...OrchestratorOption) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: NewFetcher(client, governor, cfg.PageDelay),
		store:   store,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// stats accumulates what one collection sync did.
type stats struct {
	fetched   int
	dupes     int
	filtered  int
	synced    int
	invalid   []InvalidRecord
	errs      []error
	errorType string
}

func (s *stats) fail(errorType string, err error) {
	if s.errorType == "" {
		s.errorType = errorType
	}
	s.errs = append(s.errs, err)
}

// Sync synchronizes one collection and reports the outcome.
func (o *Orchestrator) Sync(ctx context.Context, col config.CollectionConfig) Outcome {
	return o.syncCollection(ctx, col, uuid.NewString())
}

// SyncAll synchronizes collections concurrently, at most MaxConcurrent at
// a time. Outcomes are returned in input order and share one run id.
func (o *Orchestrator) SyncAll(ctx context.Context, cols []config.CollectionConfig) []Outcome {
	runID := uuid.NewString()
	start := o.now()
	outcomes := make([]Outcome, len(cols))

	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, col := range cols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				// fails fast without touching upstream
			}
			outcomes[i] = o.syncCollection(ctx, col, runID)
		}()
	}
	wg.Wait()

	ok := AllSucceeded(outcomes)
	metrics.RecordSyncRun(ok)
	logging.Info().
		Str("run_id", runID).
		Int("collections", len(outcomes)).
		Int("failed", len(Failed(outcomes))).
		Dur("duration", o.now().Sub(start)).
		Msg("Sync run completed")
	return outcomes
}

func (o *Orchestrator) syncCollection(ctx context.Context, col config.CollectionConfig, runID string) (out Outcome) {
	ctx = logging.ContextWithRunID(ctx, runID)
	start := o.now()
	st := &stats{}

	defer func() {
		if r := recover(); r != nil {
			st.fail("panic", fmt.Errorf("panic during sync: %v", r))
		}
		out = o.finish(ctx, col, runID, start, st)
	}()

	o.run(ctx, col, st)
	return out
}

// run performs fetch, normalize, map and upsert for one collection.
func (o *Orchestrator) run(ctx context.Context, col config.CollectionConfig, st *stats) {
	if col.Name == "" {
		st.fail("config", fmt.Errorf("%w: empty collection name", config.ErrUnknownCollection))
		return
	}
	mapping, err := NewMapping(col)
	if err != nil {
		st.fail("config", err)
		return
	}

	records, err := o.fetch(ctx, col)
	if err != nil {
		st.fail(upstream.ErrorType(err), err)
		return
	}
	st.fetched = len(records)

	records, st.dupes = Deduplicate(records)
	records = normalize(records, col)

	if len(col.RequiredFields) > 0 {
		vr := Validate(records, col.RequiredFields)
		st.invalid = vr.Invalid
		if col.SkipInvalid {
			records = vr.Valid
		}
	}
	if col.Allowlist != nil {
		records, st.filtered = FilterByAllowlist(records, col.Allowlist.Field, col.Allowlist.Values)
	}

	rows, err := mapping.Apply(records)
	if err != nil {
		st.fail("mapping", err)
		return
	}

	spec := mapping.Table()
	if err := o.store.EnsureTable(ctx, spec); err != nil {
		st.fail("store", fmt.Errorf("ensure table %s: %w", spec.Name, err))
		return
	}
	n, err := o.store.Upsert(ctx, spec.Name, mapping.Columns(), rows)
	if err != nil {
		st.fail("store", fmt.Errorf("upsert %s: %w", spec.Name, err))
		return
	}
	st.synced = n

	if o.preview != nil {
		o.preview.Invalidate(previewKey(col))
	}
}

// fetch reads the whole collection, restarting from page 1 on each retry.
func (o *Orchestrator) fetch(ctx context.Context, col config.CollectionConfig) ([]record.Record, error) {
	object := col.Object
	if object == "" {
		object = col.Name
	}
	policy := retry.Policy{
		MaxAttempts: o.cfg.RetryAttempts,
		BaseDelay:   o.cfg.RetryDelay,
		MaxDelay:    o.cfg.RetryMaxDelay,
		Operation:   "fetch_collection",
		Retryable:   upstream.IsRetryable,
		Sleep:       o.sleep,
	}
	return retry.Do(ctx, policy, func(ctx context.Context) ([]record.Record, error) {
		return o.fetcher.FetchAll(ctx, object, col.PageSize)
	})
}

// normalize applies the value canonicalization configured for col.
func normalize(records []record.Record, col config.CollectionConfig) []record.Record {
	for _, table := range col.Canonicalize {
		records = Canonicalize(records, table.Field, table.Lookup())
	}
	for _, rule := range col.Dates {
		out := rule.Output
		if out == "" {
			out = time.RFC3339
		}
		records = CanonicalizeDates(records, rule.Field, rule.Layouts, out)
	}
	return records
}

// finish builds the outcome and performs the reporting side effects.
// Side effect failures are logged and never change the outcome.
func (o *Orchestrator) finish(ctx context.Context, col config.CollectionConfig, runID string, start time.Time, st *stats) Outcome {
	end := o.now()
	errs := make([]string, 0, len(st.errs))
	for _, err := range st.errs {
		errs = append(errs, err.Error())
	}

	out := Outcome{
		Collection:        col.Name,
		Success:           len(st.errs) == 0,
		RecordsSynced:     st.synced,
		Errors:            errs,
		Timestamp:         end.UTC(),
		RunID:             runID,
		DurationMS:        end.Sub(start).Milliseconds(),
		RecordsFetched:    st.fetched,
		DuplicatesDropped: st.dupes,
		FilteredOut:       st.filtered,
		InvalidRecords:    invalidReports(st.invalid),
	}

	metrics.RecordCollectionSync(col.Name, end.Sub(start), st.synced, st.errorType)
	if len(st.invalid) > 0 {
		metrics.SyncInvalidRecords.WithLabelValues(col.Name).Add(float64(len(st.invalid)))
	}

	logger := logging.Ctx(ctx)
	if out.Success {
		logger.Info().
			Str("collection", col.Name).
			Int("fetched", st.fetched).
			Int("synced", st.synced).
			Int("duplicates", st.dupes).
			Int("invalid", len(st.invalid)).
			Int("filtered", st.filtered).
			Dur("duration", end.Sub(start)).
			Msg("Collection synced")
	} else {
		logger.Error().
			Err(errors.Join(st.errs...)).
			Str("collection", col.Name).
			Str("error_type", st.errorType).
			Msg("Collection sync failed")
	}

	o.report(context.WithoutCancel(ctx), col, out)
	return out
}

func (o *Orchestrator) report(ctx context.Context, col config.CollectionConfig, out Outcome) {
	logger := logging.Ctx(ctx)

	if recorder, ok := o.store.(SyncStateRecorder); ok && out.Success {
		if err := recorder.RecordSyncState(ctx, col.Name, out.Timestamp, out.RecordsSynced); err != nil {
			logger.Warn().Err(err).Str("collection", col.Name).Msg("Failed to record sync state")
		}
	}
	if o.history != nil {
		if err := o.history.Append(ctx, out); err != nil {
			logger.Warn().Err(err).Str("collection", col.Name).Msg("Failed to append outcome history")
		}
	}
	if o.publisher != nil {
		if err := o.publisher.PublishOutcome(ctx, out); err != nil {
			logger.Warn().Err(err).Str("collection", col.Name).Msg("Failed to publish outcome")
		}
	}
	if o.broadcaster != nil {
		o.broadcaster.BroadcastJSON(MessageTypeSyncOutcome, out)
	}
}

// Preview returns the normalized records of a collection without writing
// them. Results are served from the cache while fresh.
func (o *Orchestrator) Preview(ctx context.Context, name string) ([]record.Record, error) {
	col, err := o.Collection(name)
	if err != nil {
		return nil, err
	}
	key := previewKey(col)
	if o.preview != nil {
		if records, ok := o.preview.Get(key); ok {
			return records, nil
		}
	}

	records, err := o.fetch(ctx, col)
	if err != nil {
		return nil, err
	}
	records, _ = Deduplicate(records)
	records = normalize(records, col)

	if o.preview != nil {
		o.preview.Set(key, records)
	}
	return records, nil
}

// Collection resolves a configured collection by name.
func (o *Orchestrator) Collection(name string) (config.CollectionConfig, error) {
	for _, col := range o.cfg.Collections {
		if col.Name == name {
			return col, nil
		}
	}
	return config.CollectionConfig{}, fmt.Errorf("%w: %q", config.ErrUnknownCollection, name)
}

// CacheStats returns result cache statistics. ok is false when no cache
// is configured.
func (o *Orchestrator) CacheStats() (cache.Stats, bool) {
	if o.rawCache == nil {
		return cache.Stats{}, false
	}
	return o.rawCache.GetStats(), true
}

func previewKey(col config.CollectionConfig) string {
	return cache.GenerateKey("preview", map[string]string{
		"collection": col.Name,
		"object":     col.Object,
	})
}
