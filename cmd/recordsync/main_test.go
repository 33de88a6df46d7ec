// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/api"
	"github.com/tomtom215/recordsync/internal/app"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/testinfra"
)

const cliConfigTemplate = `
upstream:
  url: %q
  application_id: %q
  api_key: %q
  max_requests_per_second: 0
  page_delay: 0s
sync:
  retry_attempts: 0
  enabled_collections: [permits, devices]
database:
  driver: duckdb
  path: %q
  max_memory: 256MB
  threads: 1
history:
  enabled: true
  path: %q
server:
  host: 127.0.0.1
  port: %d
logging:
  format: json
collections:
  - name: permits
    object: object_1
    fields:
      field_1: county
  - name: devices
    object: object_2
    fields:
      field_9: serial
  - name: ghost
    object: object_missing
    fields:
      field_1: county
`

// setupCLI starts a mock upstream and writes a config pointing at it. The
// daemon address in the config has nothing listening.
func setupCLI(t *testing.T, apiKey string) *testinfra.MockUpstreamServer {
	t.Helper()
	return setupCLIWithDaemonPort(t, apiKey, closedPort(t))
}

func setupCLIWithDaemonPort(t *testing.T, apiKey string, daemonPort int) *testinfra.MockUpstreamServer {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	srv := testinfra.NewMockUpstreamServer(t)
	srv.SetRecords("object_1", []map[string]any{
		{"id": "a", "field_1": "Wake"},
		{"id": "b", "field_1": "Durham"},
	})
	srv.SetRecords("object_2", []map[string]any{{"id": "d1", "field_9": "SN-1"}})

	content := fmt.Sprintf(cliConfigTemplate,
		srv.URL(), testinfra.MockApplicationID, apiKey,
		filepath.Join(dir, "recordsync.duckdb"), filepath.Join(dir, "history"), daemonPort)
	path := filepath.Join(dir, "recordsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.ConfigPathEnvVar, path)
	return srv
}

// closedPort returns a loopback port that refuses connections.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	return port
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestSyncAllSucceeded(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)

	code, out, stderr := runCLI(t, "sync")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "permits") || !strings.Contains(lines[0], "records=2") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "devices") || !strings.Contains(lines[1], "ok") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestSyncExitCodeOnFailure(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)

	code, out, _ := runCLI(t, "sync", "ghost", "permits", "--json")
	if code != exitFailed {
		t.Fatalf("exit = %d, want %d\n%s", code, exitFailed, out)
	}

	var report syncReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.AllSucceeded || len(report.Outcomes) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Outcomes[0].Collection != "ghost" || report.Outcomes[0].Success || len(report.Outcomes[0].Errors) == 0 {
		t.Errorf("outcome[0] = %+v, want failed ghost", report.Outcomes[0])
	}
	if report.Outcomes[1].Collection != "permits" || !report.Outcomes[1].Success || report.Outcomes[1].RecordsSynced != 2 {
		t.Errorf("outcome[1] = %+v, want successful permits", report.Outcomes[1])
	}
}

func TestConfigErrorsExitBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		args   []string
	}{
		{"missing credentials", "", []string{"sync"}},
		{"unknown collection", testinfra.MockAPIKey, []string{"sync", "nope"}},
		{"unknown outcomes collection", testinfra.MockAPIKey, []string{"outcomes", "--collection", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupCLI(t, tt.apiKey)
			code, _, stderr := runCLI(t, tt.args...)
			if code != exitConfig {
				t.Errorf("exit = %d, want %d (stderr %q)", code, exitConfig, stderr)
			}
			if n := len(srv.GetCaptures()); n != 0 {
				t.Errorf("upstream requests = %d, want 0", n)
			}
		})
	}
}

func TestOutcomesAndCollectionsAfterSync(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)
	if code, _, stderr := runCLI(t, "sync", "permits"); code != exitOK {
		t.Fatalf("sync exit = %d: %s", code, stderr)
	}

	code, out, stderr := runCLI(t, "outcomes", "--collection", "permits", "--json")
	if code != exitOK {
		t.Fatalf("outcomes exit = %d: %s", code, stderr)
	}
	var outcomes []struct {
		Collection string `json:"collection"`
		Success    bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(outcomes) != 1 || outcomes[0].Collection != "permits" || !outcomes[0].Success {
		t.Errorf("outcomes = %+v", outcomes)
	}

	code, out, stderr = runCLI(t, "collections")
	if code != exitOK {
		t.Fatalf("collections exit = %d: %s", code, stderr)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "never") {
		t.Errorf("collections output:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "permits") && (strings.Contains(line, "never") || !strings.HasSuffix(strings.TrimSpace(line), "2")) {
			t.Errorf("permits line = %q, want last sync with 2 records", line)
		}
	}
}

// startDaemonAPI builds the components from the written config and serves
// the operator API on ts, the way the daemon does. The components keep the
// DuckDB file and history directory open for the rest of the test.
func startDaemonAPI(t *testing.T, ts *httptest.Server) *app.Components {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	c, err := app.Build(context.Background(), cfg, app.Options{})
	if err != nil {
		t.Fatalf("app.Build() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ts.Config.Handler = api.NewRouter(api.NewHandler(api.Dependencies{
		Sync:     c.Manager,
		Preview:  c.Orchestrator,
		Store:    c.Store,
		History:  c.History,
		Upstream: c.Upstream,
		Governor: c.Governor,
	}), nil, nil).SetupChi()
	ts.Start()
	t.Cleanup(ts.Close)
	return c
}

func TestCommandsUseRunningDaemon(t *testing.T) {
	ts := httptest.NewUnstartedServer(nil)
	setupCLIWithDaemonPort(t, testinfra.MockAPIKey, ts.Listener.Addr().(*net.TCPAddr).Port)
	daemon := startDaemonAPI(t, ts)

	// No --server: the configured address answers.
	code, out, stderr := runCLI(t, "sync", "permits", "--json")
	if code != exitOK {
		t.Fatalf("sync exit = %d: %s", code, stderr)
	}
	var report syncReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if !report.AllSucceeded || len(report.Outcomes) != 1 || report.Outcomes[0].RecordsSynced != 2 {
		t.Fatalf("report = %+v", report)
	}
	if last, at := daemon.Manager.LastRun(); at.IsZero() || len(last) != 1 {
		t.Errorf("daemon LastRun() = %+v at %v, want the CLI's run", last, at)
	}

	code, out, stderr = runCLI(t, "outcomes", "--collection", "permits", "--json")
	if code != exitOK {
		t.Fatalf("outcomes exit = %d: %s", code, stderr)
	}
	var outcomes []struct {
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil || len(outcomes) != 1 {
		t.Errorf("outcomes = %s (%v)", out, err)
	}

	code, out, stderr = runCLI(t, "--server", ts.URL, "collections", "--json")
	if code != exitOK {
		t.Fatalf("collections exit = %d: %s", code, stderr)
	}
	var rows []collectionRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	for _, r := range rows {
		if r.Name == "permits" && (r.LastSyncedAt == nil || r.RecordsSynced != 2) {
			t.Errorf("permits row = %+v", r)
		}
	}
}

func TestDaemonSyncFailureExitCode(t *testing.T) {
	ts := httptest.NewUnstartedServer(nil)
	setupCLIWithDaemonPort(t, testinfra.MockAPIKey, ts.Listener.Addr().(*net.TCPAddr).Port)
	startDaemonAPI(t, ts)

	code, out, _ := runCLI(t, "sync", "ghost", "permits", "--json")
	if code != exitFailed {
		t.Fatalf("exit = %d, want %d\n%s", code, exitFailed, out)
	}
	var report syncReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.AllSucceeded || len(report.Outcomes) != 2 || report.Outcomes[0].Collection != "ghost" {
		t.Errorf("report = %+v", report)
	}
}

func TestExplicitServerMustAnswer(t *testing.T) {
	srv := setupCLI(t, testinfra.MockAPIKey)
	url := fmt.Sprintf("http://127.0.0.1:%d", closedPort(t))

	code, _, stderr := runCLI(t, "--server", url, "sync")
	if code != exitFailed || !strings.Contains(stderr, "daemon at") {
		t.Errorf("exit = %d, stderr = %q", code, stderr)
	}
	if n := len(srv.GetCaptures()); n != 0 {
		t.Errorf("upstream requests = %d, want 0", n)
	}
}

func TestOutcomesBeforeAnySync(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)
	code, out, stderr := runCLI(t, "outcomes", "--json")
	if code != exitOK || strings.TrimSpace(out) != "[]" {
		t.Errorf("outcomes = %d %q (stderr %q)", code, out, stderr)
	}
}

func TestPing(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)
	if code, out, _ := runCLI(t, "ping"); code != exitOK || !strings.Contains(out, "ok") {
		t.Errorf("ping = %d %q", code, out)
	}

	setupCLI(t, "wrong-key")
	if code, _, stderr := runCLI(t, "ping"); code != exitFailed || !strings.Contains(stderr, "Error") {
		t.Errorf("ping with bad key = %d %q", code, stderr)
	}
}

func TestConfigFlag(t *testing.T) {
	setupCLI(t, testinfra.MockAPIKey)
	path := os.Getenv(config.ConfigPathEnvVar)
	t.Setenv(config.ConfigPathEnvVar, "")

	if code, _, _ := runCLI(t, "ping"); code != exitConfig {
		t.Errorf("ping without config exit = %d, want %d", code, exitConfig)
	}
	if code, _, stderr := runCLI(t, "--config", path, "ping"); code != exitOK {
		t.Errorf("ping --config exit = %d: %s", code, stderr)
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != exitOK || !strings.HasPrefix(out, "recordsync version dev") {
		t.Errorf("version = %d %q", code, out)
	}
}
