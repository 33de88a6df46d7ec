// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/recordsync/config.yaml",
	"/etc/recordsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:                  "https://api.knack.com",
			AppIDHeader:          "X-Knack-Application-Id",
			APIKeyHeader:         "X-Knack-REST-API-Key",
			MaxPageSize:          1000,
			MaxRequestsPerSecond: 10,
			SafetyMargin:         50 * time.Millisecond,
			PageDelay:            100 * time.Millisecond,
			Timeout:              30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:                 15 * time.Minute,
			OnStartup:                true,
			RetryAttempts:            3,
			RetryDelay:               time.Second,
			RetryMaxDelay:            30 * time.Second,
			MaxConcurrentCollections: 2,
		},
		Cache: CacheConfig{
			DefaultTTL: 300 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:    "duckdb",
			Path:      "/data/recordsync.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
			MaxConns:  4,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "/data/history",
			Retention: 100,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			Topic:          "sync_completed",
			EmbeddedServer: false,
			StoreDir:       "/data/nats",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
		},
		WAL: WALConfig{
			Enabled:       true,
			Path:          "/data/wal",
			RetryInterval: 30 * time.Second,
			RetryBackoff:  time.Second,
			MaxAttempts:   20,
			EntryTTL:      7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8471,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers configuration sources:
//  1. struct defaults
//  2. YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables (mapped by envTransformFunc)
//
// Collections can only be declared in the file.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyCollectionDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// applyCollectionDefaults fills Object, Table and PageSize from Name and
// the upstream page cap.
func (c *Config) applyCollectionDefaults() {
	for i := range c.Collections {
		col := &c.Collections[i]
		if col.Object == "" {
			col.Object = col.Name
		}
		if col.Table == "" {
			col.Table = col.Name
		}
		if col.PageSize == 0 {
			col.PageSize = c.Upstream.MaxPageSize
		}
		for j := range col.Dates {
			if col.Dates[j].Output == "" {
				col.Dates[j].Output = time.RFC3339
			}
		}
	}
}

// sliceConfigPaths are keys that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"sync.enabled_collections",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"upstream_url":            "upstream.url",
	"upstream_application_id": "upstream.application_id",
	"upstream_api_key":        "upstream.api_key",
	"upstream_app_id_header":  "upstream.app_id_header",
	"upstream_api_key_header": "upstream.api_key_header",
	"upstream_max_page_size":  "upstream.max_page_size",
	"upstream_rate_limit":     "upstream.max_requests_per_second",
	"upstream_safety_margin":  "upstream.safety_margin",
	"upstream_page_delay":     "upstream.page_delay",
	"upstream_timeout":        "upstream.timeout",

	"sync_interval":        "sync.interval",
	"sync_on_startup":      "sync.on_startup",
	"sync_retry_attempts":  "sync.retry_attempts",
	"sync_retry_delay":     "sync.retry_delay",
	"sync_retry_max_delay": "sync.retry_max_delay",
	"sync_concurrency":     "sync.max_concurrent_collections",
	"sync_collections":     "sync.enabled_collections",

	"cache_ttl": "cache.default_ttl",

	"db_driver":          "database.driver",
	"duckdb_path":        "database.path",
	"duckdb_max_memory":  "database.max_memory",
	"duckdb_threads":     "database.threads",
	"postgres_dsn":       "database.dsn",
	"postgres_max_conns": "database.max_conns",

	"history_enabled":   "history.enabled",
	"history_path":      "history.path",
	"history_retention": "history.retention",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_topic":          "nats.topic",
	"nats_embedded":       "nats.embedded_server",
	"nats_store_dir":      "nats.store_dir",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",

	"wal_enabled":        "wal.enabled",
	"wal_path":           "wal.path",
	"wal_retry_interval": "wal.retry_interval",
	"wal_retry_backoff":  "wal.retry_backoff",
	"wal_max_attempts":   "wal.max_attempts",
	"wal_entry_ttl":      "wal.entry_ttl",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its config key.
// Unmapped variables are dropped so unrelated environment does not leak
// into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
// Callers reload with LoadWithKoanf and swap the result themselves.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
