// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package events

import (
	"context"
	"fmt"

	"github.com/tomtom215/recordsync/internal/logging"
	recsync "github.com/tomtom215/recordsync/internal/sync"
	"github.com/tomtom215/recordsync/internal/wal"
)

// DurablePublisher writes every outcome to the WAL before publishing it.
// A failed publish is left in the WAL for the retry loop and is not
// reported to the caller. It implements sync.OutcomePublisher.
type DurablePublisher struct {
	publisher *Publisher
	wal       *wal.BadgerWAL
}

// NewDurablePublisher wraps p with w.
func NewDurablePublisher(p *Publisher, w *wal.BadgerWAL) *DurablePublisher {
	return &DurablePublisher{publisher: p, wal: w}
}

// PublishOutcome persists out, publishes it and confirms the entry. When
// the WAL itself fails the outcome is published directly.
func (d *DurablePublisher) PublishOutcome(ctx context.Context, out recsync.Outcome) error {
	id, err := d.wal.Write(ctx, out)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("collection", out.Collection).Msg("WAL write failed, publishing without durability")
		return d.publisher.PublishOutcome(ctx, out)
	}

	if err := d.publisher.publishWithID(ctx, id, out); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("collection", out.Collection).
			Str("entry_id", id).
			Msg("Outcome publish failed, kept in WAL for retry")
		if uerr := d.wal.UpdateAttempt(ctx, id, err.Error()); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Str("entry_id", id).Msg("Failed to record WAL attempt")
		}
		return nil
	}

	if err := d.wal.Confirm(ctx, id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("entry_id", id).Msg("Failed to confirm WAL entry")
	}
	return nil
}

// Republish publishes a WAL entry under its original id. It is the
// wal.PublishFunc of the retry loop.
func (d *DurablePublisher) Republish(ctx context.Context, entry *wal.Entry) error {
	var out recsync.Outcome
	if err := entry.UnmarshalPayload(&out); err != nil {
		return fmt.Errorf("decode WAL entry %s: %w", entry.ID, err)
	}
	return d.publisher.publishWithID(ctx, entry.ID, out)
}
