// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package pgstore is the PostgreSQL implementation of the local record
// store. It mirrors the DuckDB store in internal/database: one table per
// collection keyed by id, upserts in a single transaction, and a
// collection_sync_state bookkeeping table.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/schema"
)

// DriverName labels store metrics.
const DriverName = "postgres"

var dialect = schema.Dialect{
	Text:      "TEXT",
	Number:    "DOUBLE PRECISION",
	Bool:      "BOOLEAN",
	JSON:      "JSONB",
	Timestamp: "TIMESTAMPTZ",
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS collection_sync_state (
  collection     TEXT PRIMARY KEY,
  last_synced_at TIMESTAMPTZ NOT NULL,
  records_synced BIGINT NOT NULL DEFAULT 0,
  sync_count     BIGINT NOT NULL DEFAULT 0
)`,
}

// Store writes synced records to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to cfg.DSN and applies the bookkeeping schema.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logging.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostgreSQL store opened")
	return s, nil
}

// NewWithPool wraps an existing pool. The schema is applied immediately.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for i, ddl := range migrations {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply postgres migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureTable creates spec's table and adds missing columns.
func (s *Store) EnsureTable(ctx context.Context, spec schema.TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, schema.CreateTableSQL(spec, dialect)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}
	for _, c := range spec.Columns {
		if _, err := s.pool.Exec(ctx, schema.AddColumnSQL(spec.Name, c, dialect)); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", spec.Name, c.Name, err)
		}
	}
	return nil
}

func placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Upsert writes rows in one transaction using a pipelined batch.
func (s *Store) Upsert(ctx context.Context, table string, columns []string, rows [][]any) (int, error) {
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
	start := time.Now()
	query := schema.UpsertSQL(table, columns, placeholder, "now()")

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
			}
			batch.Queue(query, row...)
		}
		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	metrics.RecordStoreUpsert(DriverName, time.Since(start))
	return len(rows), nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if err := schema.CheckIdentifier(table); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+schema.QuoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// RecordSyncState stores the time and size of a successful sync.
func (s *Store) RecordSyncState(ctx context.Context, collection string, at time.Time, records int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO collection_sync_state (collection, last_synced_at, records_synced, sync_count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (collection) DO UPDATE SET
  last_synced_at = EXCLUDED.last_synced_at,
  records_synced = EXCLUDED.records_synced,
  sync_count     = collection_sync_state.sync_count + 1`,
		collection, at.UTC(), records)
	if err != nil {
		return fmt.Errorf("failed to record sync state for %s: %w", collection, err)
	}
	return nil
}

// SyncStates returns the recorded state of every synced collection.
func (s *Store) SyncStates(ctx context.Context) ([]schema.SyncState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection, last_synced_at, records_synced FROM collection_sync_state ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	states, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (schema.SyncState, error) {
		var st schema.SyncState
		err := row.Scan(&st.Collection, &st.LastSyncedAt, &st.RecordsSynced)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync state: %w", err)
	}
	if states == nil {
		states = []schema.SyncState{}
	}
	return states, nil
}
