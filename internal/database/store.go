// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/schema"
)

// DriverName labels store metrics.
const DriverName = "duckdb"

// EnsureTable creates spec's table if needed and adds any mapped column
// the table does not have yet.
func (db *DB) EnsureTable(ctx context.Context, spec schema.TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schema.CreateTableSQL(spec, dialect)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}

	existing, err := db.tableColumns(ctx, spec.Name)
	if err != nil {
		return err
	}
	for _, c := range spec.Columns {
		if existing[c.Name] {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, schema.AddColumnSQL(spec.Name, c, dialect)); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", spec.Name, c.Name, err)
		}
		logging.Info().Str("table", spec.Name).Str("column", c.Name).Msg("Added column to synced table")
	}
	return nil
}

func (db *DB) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer closeWithLog(rows, "column rows")

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Upsert writes rows into table in one transaction, inserting new ids and
// overwriting existing ones. columns starts with the id column and matches
// the order of every row. Either all rows are written or none are.
func (db *DB) Upsert(ctx context.Context, table string, columns []string, rows [][]any) (n int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := schema.CheckIdentifier(table); err != nil {
		return 0, err
	}
	for _, c := range columns {
		if err := schema.CheckIdentifier(c); err != nil {
			return 0, err
		}
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	query := schema.UpsertSQL(table, columns, func(int) string { return "?" }, "CURRENT_TIMESTAMP")
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert for %s: %w", table, err)
	}
	defer closeWithLog(stmt, "upsert statement")

	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
		}
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("failed to upsert %v into %s: %w", row[0], table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert into %s: %w", table, err)
	}
	metrics.RecordStoreUpsert(DriverName, time.Since(start))
	return len(rows), nil
}

// Count returns the number of rows in table.
func (db *DB) Count(ctx context.Context, table string) (int64, error) {
	if err := schema.CheckIdentifier(table); err != nil {
		return 0, err
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.QuoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// RecordSyncState stores the time and size of a successful sync.
func (db *DB) RecordSyncState(ctx context.Context, collection string, at time.Time, records int) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO collection_sync_state (collection, last_synced_at, records_synced, sync_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (collection) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			records_synced = EXCLUDED.records_synced,
			sync_count = COALESCE(sync_count, 0) + 1`,
		collection, at.UTC(), records)
	if err != nil {
		return fmt.Errorf("failed to record sync state for %s: %w", collection, err)
	}
	return nil
}

// SyncStates returns the recorded state of every synced collection.
func (db *DB) SyncStates(ctx context.Context) ([]schema.SyncState, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT collection, last_synced_at, records_synced FROM collection_sync_state ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	defer closeWithLog(rows, "sync state rows")

	states := make([]schema.SyncState, 0)
	for rows.Next() {
		var s schema.SyncState
		if err := rows.Scan(&s.Collection, &s.LastSyncedAt, &s.RecordsSynced); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}
