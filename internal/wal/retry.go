// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package wal

import (
	"context"
	"time"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/retry"
)

const (
	maxRetryBackoff = 5 * time.Minute
	publishTimeout  = 10 * time.Second
)

// PublishFunc re-publishes one entry.
type PublishFunc func(ctx context.Context, entry *Entry) error

// RetryLoop periodically re-publishes pending entries. It implements
// suture.Service.
type RetryLoop struct {
	wal         *BadgerWAL
	publish     PublishFunc
	interval    time.Duration
	backoff     retry.Policy
	maxAttempts int
	entryTTL    time.Duration
	now         func() time.Time
}

// NewRetryLoop creates a retry loop for w.
func NewRetryLoop(w *BadgerWAL, publish PublishFunc, cfg config.WALConfig) *RetryLoop {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &RetryLoop{
		wal:         w,
		publish:     publish,
		interval:    interval,
		backoff:     retry.Policy{BaseDelay: cfg.RetryBackoff, MaxDelay: maxRetryBackoff},
		maxAttempts: maxAttempts,
		entryTTL:    cfg.EntryTTL,
		now:         time.Now,
	}
}

// Serve retries once immediately, which recovers entries left by a
// previous process, then on every interval.
func (r *RetryLoop) Serve(ctx context.Context) error {
	r.RetryPending(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RetryPending(ctx)
			if err := r.wal.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("WAL GC failed")
			}
		}
	}
}

func (r *RetryLoop) String() string {
	return "wal-retry"
}

// RetryStats counts what one RetryPending pass did.
type RetryStats struct {
	Published int
	Failed    int
	Skipped   int
	Dropped   int
}

// RetryPending makes one pass over the pending entries.
func (r *RetryLoop) RetryPending(ctx context.Context) RetryStats {
	var stats RetryStats

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("WAL retry: failed to read pending entries")
		return stats
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch {
		case r.expired(entry):
			r.drop(ctx, entry, "expired")
			stats.Dropped++
		case entry.Attempts >= r.maxAttempts:
			r.drop(ctx, entry, "dropped")
			stats.Dropped++
		case !r.ready(entry):
			stats.Skipped++
		case r.attempt(ctx, entry):
			stats.Published++
		default:
			stats.Failed++
		}
	}

	if stats.Published+stats.Failed+stats.Dropped > 0 {
		logging.Info().
			Int("published", stats.Published).
			Int("failed", stats.Failed).
			Int("dropped", stats.Dropped).
			Int("skipped", stats.Skipped).
			Msg("WAL retry pass complete")
	}
	return stats
}

func (r *RetryLoop) expired(entry *Entry) bool {
	return r.entryTTL > 0 && r.now().Sub(entry.CreatedAt) > r.entryTTL
}

// ready applies per-entry exponential backoff since the last attempt.
func (r *RetryLoop) ready(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return r.now().Sub(entry.LastAttemptAt) >= r.backoff.Delay(entry.Attempts-1)
}

func (r *RetryLoop) attempt(ctx context.Context, entry *Entry) bool {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := r.publish(pubCtx, entry)
	cancel()
	metrics.WALEntries.WithLabelValues("retried").Inc()

	if err != nil {
		logging.Warn().Err(err).
			Str("entry_id", entry.ID).
			Int("attempt", entry.Attempts+1).
			Msg("WAL retry: publish failed")
		if uerr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); uerr != nil {
			logging.Error().Err(uerr).Str("entry_id", entry.ID).Msg("WAL retry: failed to record attempt")
		}
		return false
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to confirm entry")
		return false
	}
	return true
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry, reason string) {
	logging.Warn().
		Str("entry_id", entry.ID).
		Int("attempts", entry.Attempts).
		Str("last_error", entry.LastError).
		Str("reason", reason).
		Msg("WAL retry: giving up on entry")
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to delete entry")
		return
	}
	metrics.WALEntries.WithLabelValues(reason).Inc()
}
