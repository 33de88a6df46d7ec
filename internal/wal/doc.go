// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package wal is a durable outbox for events that must reach NATS.
//
// An event is written to BadgerDB (synchronous writes) before it is
// published and deleted once the publish is confirmed:
//
//	Write ──► publish ──► Confirm
//	              │
//	              └─(failure)─► UpdateAttempt, entry stays pending
//
// RetryLoop re-publishes pending entries on an interval with per-entry
// exponential backoff, and drops entries after MaxAttempts failures or
// once EntryTTL has passed. Entries surviving a crash are picked up by the
// first pass after restart.
//
// Delivery is at least once. Entry ids are stable across attempts, so
// consumers can deduplicate on them (JetStream does so via Nats-Msg-Id).
package wal
