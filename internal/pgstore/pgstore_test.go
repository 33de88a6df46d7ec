// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package pgstore

import (
	"context"
	"strings"
	"testing"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/schema"
)

func TestPlaceholder(t *testing.T) {
	if got := placeholder(12); got != "$12" {
		t.Errorf("placeholder(12) = %q", got)
	}
}

func TestDialectTypes(t *testing.T) {
	got := schema.CreateTableSQL(schema.TableSpec{
		Name:    "permits",
		Columns: []schema.Column{{Name: "meta", Type: schema.ColumnJSON}, {Name: "amount", Type: schema.ColumnNumber}},
	}, dialect)
	for _, want := range []string{`"id" TEXT PRIMARY KEY`, `"meta" JSONB`, `"amount" DOUBLE PRECISION`, `"synced_at" TIMESTAMPTZ NOT NULL`} {
		if !strings.Contains(got, want) {
			t.Errorf("CreateTableSQL() = %s, missing %s", got, want)
		}
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), &config.DatabaseConfig{Driver: "postgres"}); err == nil {
		t.Error("New() expected error without DSN")
	}
	if _, err := New(context.Background(), &config.DatabaseConfig{Driver: "postgres", DSN: "://bad"}); err == nil {
		t.Error("New() expected error for malformed DSN")
	}
	if _, err := NewWithPool(context.Background(), nil); err == nil {
		t.Error("NewWithPool(nil) expected error")
	}
}
