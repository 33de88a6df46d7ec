// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Upstream.ApplicationID = "app"
	cfg.Upstream.APIKey = "key"
	cfg.Collections = []CollectionConfig{
		{
			Name:   "permits",
			Fields: map[string]string{"field_1": "county", "field_2": "status"},
		},
		{
			Name:     "devices",
			Disabled: true,
			Fields:   map[string]string{"field_9": "serial"},
		},
	}
	cfg.applyCollectionDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Upstream.APIKey = "" },
			wantErr: "UPSTREAM_API_KEY is required",
		},
		{
			name:    "url with path",
			mutate:  func(c *Config) { c.Upstream.URL = "https://api.example.com/v1" },
			wantErr: "remove path",
		},
		{
			name:    "url bad scheme",
			mutate:  func(c *Config) { c.Upstream.URL = "ftp://api.example.com" },
			wantErr: "scheme must be http or https",
		},
		{
			name:    "page size over cap",
			mutate:  func(c *Config) { c.Collections[0].PageSize = 5000 },
			wantErr: "page_size must be between 1 and 1000",
		},
		{
			name: "duplicate collection",
			mutate: func(c *Config) {
				dup := c.Collections[0]
				dup.Table = "other"
				c.Collections = append(c.Collections, dup)
			},
			wantErr: "declared more than once",
		},
		{
			name: "shared table",
			mutate: func(c *Config) {
				c.Collections[1].Table = c.Collections[0].Table
			},
			wantErr: "both write table",
		},
		{
			name:    "field maps to id",
			mutate:  func(c *Config) { c.Collections[0].Fields["field_3"] = "ID" },
			wantErr: "reserved column id",
		},
		{
			name:    "column type for unmapped column",
			mutate:  func(c *Config) { c.Collections[0].ColumnTypes = map[string]string{"missing": "text"} },
			wantErr: "unmapped column",
		},
		{
			name:    "bad column type",
			mutate:  func(c *Config) { c.Collections[0].ColumnTypes = map[string]string{"county": "blob"} },
			wantErr: "collections[0].column_types[county] must be one of",
		},
		{
			name:    "invalid table identifier",
			mutate:  func(c *Config) { c.Collections[0].Table = "drop table;" },
			wantErr: "collections[0].table must start with a letter",
		},
		{
			name:    "sync state table",
			mutate:  func(c *Config) { c.Collections[0].Table = "collection_sync_state" },
			wantErr: "is used by the store itself",
		},
		{
			name: "table defaults to migrations table",
			mutate: func(c *Config) {
				c.Collections[0].Name = "schema_migrations"
				c.Collections[0].Table = ""
				c.applyCollectionDefaults()
			},
			wantErr: "is used by the store itself",
		},
		{
			name:    "negative retry attempts",
			mutate:  func(c *Config) { c.Sync.RetryAttempts = -1 },
			wantErr: "SYNC_RETRY_ATTEMPTS",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "POSTGRES_DSN is required",
		},
		{
			name: "nats bad url",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URL = "http://nats.local"
			},
			wantErr: "NATS_URL is invalid",
		},
		{
			name: "nats dotted topic",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.Topic = "sync.completed"
			},
			wantErr: "NATS_TOPIC",
		},
		{
			name: "wal without path",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.WAL.Path = ""
			},
			wantErr: "WAL_PATH is required",
		},
		{
			name: "wal ignored without nats",
			mutate: func(c *Config) {
				c.WAL.Path = ""
			},
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCollectionLookup(t *testing.T) {
	cfg := validConfig()

	col, err := cfg.Collection("permits")
	if err != nil {
		t.Fatalf("Collection(permits) error = %v", err)
	}
	if col.Table != "permits" {
		t.Errorf("Table = %q, want permits", col.Table)
	}

	if _, err := cfg.Collection("donations"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("Collection(donations) error = %v, want ErrUnknownCollection", err)
	}
}

func TestScheduledCollections(t *testing.T) {
	cfg := validConfig()
	cfg.Collections[1].Disabled = false
	cfg.Collections = append(cfg.Collections, CollectionConfig{Name: "skipped", Disabled: true})

	names := func(cols []CollectionConfig) string {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = c.Name
		}
		return strings.Join(out, ",")
	}

	if got := names(cfg.ScheduledCollections()); got != "permits,devices" {
		t.Errorf("ScheduledCollections() = %q, want permits,devices", got)
	}

	cfg.Sync.EnabledCollections = []string{"devices"}
	if got := names(cfg.ScheduledCollections()); got != "devices" {
		t.Errorf("ScheduledCollections() with filter = %q, want devices", got)
	}

	got, err := cfg.CollectionsByName([]string{"devices", "permits"})
	if err != nil {
		t.Fatalf("CollectionsByName() error = %v", err)
	}
	if names(got) != "devices,permits" {
		t.Errorf("CollectionsByName() order = %q, want devices,permits", names(got))
	}
	if _, err := cfg.CollectionsByName([]string{"nope"}); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("CollectionsByName(nope) error = %v, want ErrUnknownCollection", err)
	}
}

func TestCanonicalTableLookup(t *testing.T) {
	table := CanonicalTable{
		Field: "county",
		Values: []CanonicalValue{
			{Canonical: "Wake"},
			{Canonical: "Durham", Aliases: []string{"DURHAM CO"}},
		},
	}
	lookup := table.Lookup()
	want := map[string]string{"wake": "Wake", "durham": "Durham", "durham co": "Durham"}
	if len(lookup) != len(want) {
		t.Fatalf("Lookup() = %v, want %v", lookup, want)
	}
	for k, v := range want {
		if lookup[k] != v {
			t.Errorf("Lookup()[%q] = %q, want %q", k, lookup[k], v)
		}
	}
}
