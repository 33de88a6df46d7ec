// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package schema describes local cache tables independently of the SQL
// driver that creates them.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/recordsync/internal/validation"
)

// KeyColumn is the primary key of every synced table. It holds the
// upstream record id.
const KeyColumn = "id"

// SyncedAtColumn records when a row was last written.
const SyncedAtColumn = "synced_at"

// Bookkeeping tables owned by the stores. Collections may not write them.
const (
	MigrationsTable = "schema_migrations"
	SyncStateTable  = "collection_sync_state"
)

// ErrReservedTable is returned when a synced table would overwrite a
// bookkeeping table.
var ErrReservedTable = errors.New("reserved table name")

// ErrInvalidIdentifier is returned for table or column names that are not
// safe to interpolate into SQL.
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

// ColumnType is the logical type of a mapped column.
type ColumnType string

const (
	ColumnText   ColumnType = "text"
	ColumnNumber ColumnType = "number"
	ColumnBool   ColumnType = "bool"
	ColumnJSON   ColumnType = "json"
)

// ParseColumnType maps configuration strings onto ColumnType. Empty means text.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(s)) {
	case "", ColumnText:
		return ColumnText, nil
	case ColumnNumber:
		return ColumnNumber, nil
	case ColumnBool:
		return ColumnBool, nil
	case ColumnJSON:
		return ColumnJSON, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

// Column is one non-key column.
type Column struct {
	Name string
	Type ColumnType
}

// TableSpec is a synced table: the id key, Columns, and synced_at.
type TableSpec struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the key column followed by Columns in order.
func (t TableSpec) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns)+1)
	names = append(names, KeyColumn)
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Validate checks every identifier in t.
func (t TableSpec) Validate() error {
	if err := CheckTableName(t.Name); err != nil {
		return err
	}
	for _, c := range t.Columns {
		if err := CheckIdentifier(c.Name); err != nil {
			return err
		}
		if c.Name == KeyColumn || c.Name == SyncedAtColumn {
			return fmt.Errorf("%w: column %q is reserved", ErrInvalidIdentifier, c.Name)
		}
	}
	return nil
}

// CheckIdentifier rejects names that are not plain SQL identifiers.
func CheckIdentifier(name string) error {
	if !validation.IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// CheckTableName rejects invalid identifiers and the bookkeeping tables.
// The comparison ignores case because unquoted SQL names fold.
func CheckTableName(name string) error {
	if err := CheckIdentifier(name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case MigrationsTable, SyncStateTable:
		return fmt.Errorf("%w: %q", ErrReservedTable, name)
	}
	return nil
}

// QuoteIdent double-quotes an identifier already accepted by CheckIdentifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// UpsertSQL builds an insert-or-update statement keyed by id. placeholder
// renders the n-th (1-based) bind parameter; DuckDB uses "?" and
// PostgreSQL "$n". now is the SQL expression stored in synced_at.
func UpsertSQL(table string, columns []string, placeholder func(n int) string, now string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
		params[i] = placeholder(i + 1)
		if c != KeyColumn {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}
	syncedAt := QuoteIdent(SyncedAtColumn)
	updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", syncedAt, syncedAt))

	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s) ON CONFLICT (%s) DO UPDATE SET %s",
		QuoteIdent(table),
		strings.Join(quoted, ", "), syncedAt,
		strings.Join(params, ", "), now,
		QuoteIdent(KeyColumn),
		strings.Join(updates, ", "),
	)
}

// Dialect renders column types for one SQL engine.
type Dialect struct {
	Text      string
	Number    string
	Bool      string
	JSON      string
	Timestamp string
}

// TypeOf returns the SQL type for t.
func (d Dialect) TypeOf(t ColumnType) string {
	switch t {
	case ColumnNumber:
		return d.Number
	case ColumnBool:
		return d.Bool
	case ColumnJSON:
		return d.JSON
	default:
		return d.Text
	}
}

// CreateTableSQL returns an idempotent CREATE TABLE for spec.
func CreateTableSQL(spec TableSpec, d Dialect) string {
	defs := make([]string, 0, len(spec.Columns)+2)
	defs = append(defs, fmt.Sprintf("%s %s PRIMARY KEY", QuoteIdent(KeyColumn), d.Text))
	for _, c := range spec.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", QuoteIdent(c.Name), d.TypeOf(c.Type)))
	}
	defs = append(defs, fmt.Sprintf("%s %s NOT NULL", QuoteIdent(SyncedAtColumn), d.Timestamp))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdent(spec.Name), strings.Join(defs, ", "))
}

// AddColumnSQL returns an ALTER TABLE that adds c when it is missing.
// Columns are never dropped or retyped.
func AddColumnSQL(table string, c Column, d Dialect) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		QuoteIdent(table), QuoteIdent(c.Name), d.TypeOf(c.Type))
}

// SyncState is the bookkeeping row written after each successful
// collection sync.
type SyncState struct {
	Collection    string    `json:"collection"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	RecordsSynced int       `json:"records_synced"`
}
