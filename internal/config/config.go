// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownCollection is returned when a collection name is not configured.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrMissingCredentials is returned when upstream credentials are absent.
	ErrMissingCredentials = errors.New("missing upstream credentials")
)

// Config holds all application configuration. It is built once at startup
// by Load and never mutated afterwards.
type Config struct {
	Upstream    UpstreamConfig     `koanf:"upstream"`
	Sync        SyncConfig         `koanf:"sync"`
	Cache       CacheConfig        `koanf:"cache"`
	Database    DatabaseConfig     `koanf:"database"`
	History     HistoryConfig      `koanf:"history"`
	NATS        NATSConfig         `koanf:"nats"`
	WAL         WALConfig          `koanf:"wal"`
	Server      ServerConfig       `koanf:"server"`
	Security    SecurityConfig     `koanf:"security"`
	Logging     LoggingConfig      `koanf:"logging"`
	Collections []CollectionConfig `koanf:"collections" validate:"dive"`
}

// UpstreamConfig describes the external record store API.
type UpstreamConfig struct {
	URL           string `koanf:"url" validate:"required,url"`
	ApplicationID string `koanf:"application_id"`
	APIKey        string `koanf:"api_key"`

	// Header names carrying the credentials.
	AppIDHeader  string `koanf:"app_id_header" validate:"required"`
	APIKeyHeader string `koanf:"api_key_header" validate:"required"`

	// MaxPageSize is the hard per-request row cap enforced by upstream.
	MaxPageSize int `koanf:"max_page_size" validate:"gte=1,lte=1000"`

	// MaxRequestsPerSecond is the request ceiling enforced by the governor.
	// Zero disables throttling.
	MaxRequestsPerSecond int           `koanf:"max_requests_per_second" validate:"gte=0"`
	SafetyMargin         time.Duration `koanf:"safety_margin"`

	// PageDelay is slept between pages of one collection in addition to
	// governor throttling.
	PageDelay time.Duration `koanf:"page_delay"`

	Timeout time.Duration `koanf:"timeout"`
}

// SyncConfig controls scheduling and retries.
type SyncConfig struct {
	// Interval between scheduled runs. Zero disables the scheduler; runs
	// then happen only when triggered.
	Interval  time.Duration `koanf:"interval"`
	OnStartup bool          `koanf:"on_startup"`

	// RetryAttempts is the number of retries after the first fetch attempt.
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=0,lte=20"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`

	MaxConcurrentCollections int `koanf:"max_concurrent_collections" validate:"gte=1"`

	// EnabledCollections limits scheduled runs to these names. Empty means all.
	EnabledCollections []string `koanf:"enabled_collections"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// DatabaseConfig selects and configures the local cache store.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=duckdb postgres"`

	// DuckDB
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`

	// PostgreSQL
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
}

// HistoryConfig configures the sync outcome history store.
type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`

	// Retention is the number of outcomes kept per collection.
	Retention int `koanf:"retention" validate:"gte=1"`
}

// NATSConfig configures sync outcome event publishing.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	Topic          string        `koanf:"topic"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// WALConfig configures the durable outbox for outcome events. Only used
// when NATS publishing is enabled.
type WALConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`

	// RetryInterval is how often pending entries are re-published.
	RetryInterval time.Duration `koanf:"retry_interval"`
	// RetryBackoff is the base of the per-entry exponential backoff.
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	// MaxAttempts drops an entry after this many failed publishes.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1"`
	// EntryTTL drops entries older than this regardless of attempts.
	EntryTTL time.Duration `koanf:"entry_ttl"`
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig configures CORS and request rate limiting for the API.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CollectionConfig describes one upstream collection and how it lands in
// the local store.
type CollectionConfig struct {
	// Name identifies the collection in logs, outcomes and the API.
	Name string `koanf:"name" validate:"required,identifier"`

	// Object is the upstream object key. Defaults to Name.
	Object string `koanf:"object"`

	// Table is the local table name. Defaults to Name.
	Table string `koanf:"table" validate:"omitempty,identifier"`

	// PageSize defaults to UpstreamConfig.MaxPageSize.
	PageSize int `koanf:"page_size" validate:"gte=0"`

	Disabled bool `koanf:"disabled"`

	// Fields maps upstream field keys to local column names. The id field
	// is always mapped to the id column and need not be listed.
	Fields map[string]string `koanf:"fields" validate:"required,min=1,dive,keys,required,endkeys,identifier"`

	// ColumnTypes maps column names to text, number, bool or json.
	// Unlisted columns are text.
	ColumnTypes map[string]string `koanf:"column_types" validate:"dive,oneof=text number bool json"`

	// RequiredFields are upstream field keys that must be present and non-empty.
	RequiredFields []string `koanf:"required_fields"`

	// SkipInvalid excludes records failing RequiredFields from the upsert.
	// By default they are written and reported.
	SkipInvalid bool `koanf:"skip_invalid"`

	Canonicalize []CanonicalTable `koanf:"canonicalize" validate:"dive"`
	Dates        []DateRule       `koanf:"dates" validate:"dive"`
	Allowlist    *Allowlist       `koanf:"allowlist"`
}

// CanonicalTable maps free-text values of Field to a fixed vocabulary.
// Matching is case-insensitive and exact.
type CanonicalTable struct {
	Field  string           `koanf:"field" validate:"required"`
	Values []CanonicalValue `koanf:"values" validate:"required,min=1,dive"`
}

// CanonicalValue is one vocabulary entry. The canonical form always
// matches itself; Aliases are additional spellings mapped to it.
type CanonicalValue struct {
	Canonical string   `koanf:"canonical" validate:"required"`
	Aliases   []string `koanf:"aliases"`
}

// Lookup returns the table keyed by lower-cased spelling.
func (t CanonicalTable) Lookup() map[string]string {
	out := make(map[string]string, len(t.Values))
	for _, v := range t.Values {
		out[strings.ToLower(v.Canonical)] = v.Canonical
		for _, alias := range v.Aliases {
			out[strings.ToLower(alias)] = v.Canonical
		}
	}
	return out
}

// DateRule rewrites date strings of Field into Output layout.
type DateRule struct {
	Field   string   `koanf:"field" validate:"required"`
	Layouts []string `koanf:"layouts" validate:"required,min=1"`
	Output  string   `koanf:"output"`
}

// Allowlist drops records whose Field value is not in Values.
type Allowlist struct {
	Field  string   `koanf:"field" validate:"required"`
	Values []string `koanf:"values" validate:"required,min=1"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Collection returns the named collection.
func (c *Config) Collection(name string) (CollectionConfig, error) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, nil
		}
	}
	return CollectionConfig{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// CollectionsByName resolves names in order. An empty list selects every
// scheduled collection.
func (c *Config) CollectionsByName(names []string) ([]CollectionConfig, error) {
	if len(names) == 0 {
		return c.ScheduledCollections(), nil
	}
	out := make([]CollectionConfig, 0, len(names))
	for _, name := range names {
		col, err := c.Collection(name)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

// ScheduledCollections returns the enabled collections in configuration
// order, restricted to Sync.EnabledCollections when that list is set.
func (c *Config) ScheduledCollections() []CollectionConfig {
	allowed := make(map[string]bool, len(c.Sync.EnabledCollections))
	for _, name := range c.Sync.EnabledCollections {
		allowed[name] = true
	}
	out := make([]CollectionConfig, 0, len(c.Collections))
	for _, col := range c.Collections {
		if col.Disabled {
			continue
		}
		if len(allowed) > 0 && !allowed[col.Name] {
			continue
		}
		out = append(out, col)
	}
	return out
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
