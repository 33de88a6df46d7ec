// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/recordsync/internal/schema"
	"github.com/tomtom215/recordsync/internal/validation"
)

// Validate checks that required configuration is present and consistent.
// It runs after collection defaults are applied.
func (c *Config) Validate() error {
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateCollections(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.URL, "UPSTREAM_URL"); err != nil {
		return fmt.Errorf("UPSTREAM_URL is invalid: %w", err)
	}
	if c.Upstream.ApplicationID == "" {
		return fmt.Errorf("%w: UPSTREAM_APPLICATION_ID is required", ErrMissingCredentials)
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("%w: UPSTREAM_API_KEY is required", ErrMissingCredentials)
	}
	if c.Upstream.MaxPageSize < 1 || c.Upstream.MaxPageSize > 1000 {
		return fmt.Errorf("UPSTREAM_MAX_PAGE_SIZE must be between 1 and 1000, got %d", c.Upstream.MaxPageSize)
	}
	if c.Upstream.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("UPSTREAM_RATE_LIMIT must not be negative")
	}
	if c.Upstream.SafetyMargin < 0 || c.Upstream.PageDelay < 0 {
		return fmt.Errorf("UPSTREAM_SAFETY_MARGIN and UPSTREAM_PAGE_DELAY must not be negative")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}
	if c.Sync.RetryAttempts < 0 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must not be negative, got %d", c.Sync.RetryAttempts)
	}
	if c.Sync.RetryDelay < 0 {
		return fmt.Errorf("SYNC_RETRY_DELAY must not be negative")
	}
	if c.Sync.RetryMaxDelay > 0 && c.Sync.RetryMaxDelay < c.Sync.RetryDelay {
		return fmt.Errorf("SYNC_RETRY_MAX_DELAY (%s) must not be less than SYNC_RETRY_DELAY (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryDelay)
	}
	if c.Sync.MaxConcurrentCollections < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}
	for _, name := range c.Sync.EnabledCollections {
		if _, err := c.Collection(name); err != nil {
			return fmt.Errorf("SYNC_COLLECTIONS: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCollections() error {
	names := make(map[string]bool, len(c.Collections))
	tables := make(map[string]string, len(c.Collections))
	for _, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection name is required")
		}
		if names[col.Name] {
			return fmt.Errorf("collection %q is declared more than once", col.Name)
		}
		names[col.Name] = true

		if other, ok := tables[col.Table]; ok {
			return fmt.Errorf("collections %q and %q both write table %q", other, col.Name, col.Table)
		}
		tables[col.Table] = col.Name
		if err := schema.CheckTableName(col.Table); errors.Is(err, schema.ErrReservedTable) {
			return fmt.Errorf("collection %q: table %q is used by the store itself, set a different table", col.Name, col.Table)
		}

		if err := col.validate(c.Upstream.MaxPageSize); err != nil {
			return fmt.Errorf("collection %q: %w", col.Name, err)
		}
	}
	return nil
}

func (col CollectionConfig) validate(maxPageSize int) error {
	if col.PageSize < 1 || col.PageSize > maxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d, got %d", maxPageSize, col.PageSize)
	}
	if len(col.Fields) == 0 {
		return fmt.Errorf("fields mapping is required")
	}

	columns := make(map[string]string, len(col.Fields))
	for field, column := range col.Fields {
		if strings.EqualFold(column, "id") && field != "id" {
			return fmt.Errorf("field %q cannot map to reserved column id", field)
		}
		if other, ok := columns[column]; ok {
			return fmt.Errorf("fields %q and %q both map to column %q", other, field, column)
		}
		columns[column] = field
	}
	for column := range col.ColumnTypes {
		if _, ok := columns[column]; !ok {
			return fmt.Errorf("column_types names unmapped column %q", column)
		}
	}
	for _, ct := range col.Canonicalize {
		if ct.Field == "" || len(ct.Values) == 0 {
			return fmt.Errorf("canonicalize entries need a field and values")
		}
	}
	for _, d := range col.Dates {
		if d.Field == "" || len(d.Layouts) == 0 {
			return fmt.Errorf("date rules need a field and at least one layout")
		}
	}
	if col.Allowlist != nil && (col.Allowlist.Field == "" || len(col.Allowlist.Values) == 0) {
		return fmt.Errorf("allowlist needs a field and values")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "duckdb":
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DB_DRIVER=duckdb")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be duckdb or postgres, got %q", c.Database.Driver)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("HISTORY_PATH is required when HISTORY_ENABLED=true")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	if strings.ContainsAny(c.NATS.Topic, ".*> \t") {
		return fmt.Errorf("NATS_TOPIC %q must not contain dots, wildcards or whitespace", c.NATS.Topic)
	}
	if c.WAL.Enabled {
		if c.WAL.Path == "" {
			return fmt.Errorf("WAL_PATH is required when WAL_ENABLED=true")
		}
		if c.WAL.RetryInterval <= 0 || c.WAL.RetryBackoff < 0 || c.WAL.EntryTTL < 0 {
			return fmt.Errorf("WAL_RETRY_INTERVAL must be positive; WAL_RETRY_BACKOFF and WAL_ENTRY_TTL must not be negative")
		}
	}
	if c.NATS.EmbeddedServer {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Security.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs > 0 && c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "fatal": true, "panic": true, "disabled": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic or disabled, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
