// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package database is the DuckDB implementation of the local record store.

Every synced collection owns one table keyed by the upstream record id.
Tables are created on first sync and gain columns as the collection's
field mapping grows; columns are never dropped. Rows are written with
INSERT ... ON CONFLICT DO UPDATE so re-syncing the same data leaves the
table unchanged apart from synced_at.

Alongside the record tables the store keeps:

  - schema_migrations: versioned migrations applied at startup
  - collection_sync_state: last successful sync per collection

Usage:

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	orch := sync.NewOrchestrator(sync.NewOrchestratorConfig(cfg), client, gov, db)

Thread Safety: DB is safe for concurrent use. Each Upsert runs in its own
transaction.
*/
package database
