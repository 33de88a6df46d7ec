// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigYAML = `
upstream:
  url: "https://records.example.com"
  application_id: "app-123"
  api_key: "key-456"
  max_requests_per_second: 8

collections:
  - name: permits
    object: object_12
    fields:
      field_1: county
      field_2: status
    column_types:
      status: text
    required_fields: [field_1, field_2]
    canonicalize:
      - field: field_1
        values:
          - canonical: Wake
          - canonical: St. Louis
            aliases: [saint louis]
  - name: devices
    page_size: 250
    fields:
      field_9: serial
`

// writeConfig writes content to a temp file and points CONFIG_PATH at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
}

// isolateEnv moves into an empty directory so a stray config.yaml is not
// picked up, and unsets every mapped variable for the duration of the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	keys := []string{ConfigPathEnvVar}
	for env := range envMappings {
		keys = append(keys, strings.ToUpper(env))
	}
	for _, key := range keys {
		t.Setenv(key, "") // restores the original value on cleanup
		_ = os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Upstream.MaxPageSize != 1000 {
		t.Errorf("Upstream.MaxPageSize = %d, want 1000", cfg.Upstream.MaxPageSize)
	}
	if cfg.Upstream.SafetyMargin != 50*time.Millisecond {
		t.Errorf("Upstream.SafetyMargin = %v, want 50ms", cfg.Upstream.SafetyMargin)
	}
	if cfg.Cache.DefaultTTL != 300*time.Second {
		t.Errorf("Cache.DefaultTTL = %v, want 300s", cfg.Cache.DefaultTTL)
	}
	if cfg.Sync.MaxConcurrentCollections != 2 {
		t.Errorf("Sync.MaxConcurrentCollections = %d, want 2", cfg.Sync.MaxConcurrentCollections)
	}
	if cfg.Database.Driver != "duckdb" {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if cfg.Upstream.APIKey != "" || cfg.Upstream.ApplicationID != "" {
		t.Error("credentials must not have defaults")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"UPSTREAM_API_KEY", "upstream.api_key"},
		{"upstream_application_id", "upstream.application_id"},
		{"SYNC_COLLECTIONS", "sync.enabled_collections"},
		{"CACHE_TTL", "cache.default_ttl"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	isolateEnv(t)
	writeConfig(t, testConfigYAML)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Upstream.URL != "https://records.example.com" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Upstream.MaxRequestsPerSecond != 8 {
		t.Errorf("Upstream.MaxRequestsPerSecond = %d, want 8", cfg.Upstream.MaxRequestsPerSecond)
	}
	if len(cfg.Collections) != 2 {
		t.Fatalf("len(Collections) = %d, want 2", len(cfg.Collections))
	}

	permits := cfg.Collections[0]
	if permits.Object != "object_12" || permits.Table != "permits" {
		t.Errorf("permits object/table = %q/%q, want object_12/permits", permits.Object, permits.Table)
	}
	if permits.PageSize != 1000 {
		t.Errorf("permits.PageSize = %d, want upstream max 1000", permits.PageSize)
	}
	if permits.Fields["field_1"] != "county" {
		t.Errorf("permits.Fields[field_1] = %q, want county", permits.Fields["field_1"])
	}
	lookup := permits.Canonicalize[0].Lookup()
	if lookup["st. louis"] != "St. Louis" || lookup["saint louis"] != "St. Louis" {
		t.Errorf("canonical lookup = %v", lookup)
	}

	devices := cfg.Collections[1]
	if devices.Object != "devices" || devices.PageSize != 250 {
		t.Errorf("devices object/page_size = %q/%d, want devices/250", devices.Object, devices.PageSize)
	}

	// Defaults survive for unset values.
	if cfg.Server.Port != 8471 {
		t.Errorf("Server.Port = %d, want 8471 (default)", cfg.Server.Port)
	}
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	writeConfig(t, testConfigYAML)
	t.Setenv("UPSTREAM_API_KEY", "from-env")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("SYNC_RETRY_DELAY", "250ms")
	t.Setenv("SYNC_COLLECTIONS", "devices, permits")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Upstream.APIKey != "from-env" {
		t.Errorf("Upstream.APIKey = %q, want from-env", cfg.Upstream.APIKey)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Sync.RetryDelay != 250*time.Millisecond {
		t.Errorf("Sync.RetryDelay = %v, want 250ms", cfg.Sync.RetryDelay)
	}
	if got := strings.Join(cfg.Sync.EnabledCollections, ","); got != "devices,permits" {
		t.Errorf("Sync.EnabledCollections = %q, want devices,permits", got)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Errorf("Security.CORSOrigins = %v, want 2 entries", cfg.Security.CORSOrigins)
	}
}

func TestLoadWithKoanfMissingCredentials(t *testing.T) {
	isolateEnv(t)
	writeConfig(t, `
collections:
  - name: permits
    fields: {field_1: county}
`)

	_, err := LoadWithKoanf()
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("LoadWithKoanf() error = %v, want ErrMissingCredentials", err)
	}
	if !strings.Contains(err.Error(), "UPSTREAM_APPLICATION_ID") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestLoadWithKoanfUnknownEnabledCollection(t *testing.T) {
	isolateEnv(t)
	writeConfig(t, testConfigYAML)
	t.Setenv("SYNC_COLLECTIONS", "permits,donations")

	_, err := LoadWithKoanf()
	if !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("LoadWithKoanf() error = %v, want ErrUnknownCollection", err)
	}
}
