// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package events publishes sync outcomes to a message broker.
//
// Every collection outcome becomes one Watermill message on the configured
// topic (default "sync_completed"). The payload is the outcome JSON; the
// metadata carries collection, success and run_id for routing without
// decoding. Transport is NATS JetStream via watermill-nats, optionally
// backed by an embedded nats-server for single-binary deployments.
//
// Publishing sits behind a circuit breaker so an unreachable broker costs
// one fast failure per outcome instead of a timeout. Publish failures never
// change an outcome; the orchestrator only logs them.
package events
