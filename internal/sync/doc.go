// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package sync copies upstream record collections into the local store.

A sync of one collection runs these steps:

 1. Fetch every page through the Fetcher. Each request first passes the
    request governor; pages are read strictly in order with a short delay
    between them. The whole fetch runs inside the retry policy, so a
    failure on any page restarts the collection from page 1 and no partial
    batch is ever written.
 2. Normalize: Deduplicate (first id wins), then Canonicalize each
    configured field against its vocabulary and CanonicalizeDates.
 3. Validate required fields when configured. Invalid records are reported
    in the outcome and written unless the collection sets skip_invalid.
 4. FilterByAllowlist when configured. This is the only step that drops
    records on purpose.
 5. Map fields to columns and upsert the batch, keyed by id, in one
    transaction.

Every failure is captured in the collection's Outcome; Orchestrator.Sync
and SyncAll never return errors and never panic. SyncAll runs collections
concurrently up to a bound and returns outcomes in input order.

Manager runs SyncAll on an interval and for operator triggers, allowing one
run at a time.
*/
package sync
