// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package testinfra

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const (
	// MockApplicationID is the application id the mock upstream accepts.
	MockApplicationID = "app-123"
	// MockAPIKey is the API key the mock upstream accepts.
	MockAPIKey = "key-456"

	appIDHeader  = "X-Knack-Application-Id"
	apiKeyHeader = "X-Knack-REST-API-Key"
)

// UpstreamCapture is one request received by the mock upstream.
type UpstreamCapture struct {
	Method string
	Path   string
	Query  string
	At     time.Time
}

// MockUpstreamServer serves fixture records over the upstream records API.
type MockUpstreamServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	objects  map[string][]map[string]any
	captures []UpstreamCapture
	failures []int // status codes returned by the next requests, in order
}

// NewMockUpstreamServer starts a mock upstream closed at test cleanup.
func NewMockUpstreamServer(t *testing.T) *MockUpstreamServer {
	t.Helper()

	m := &MockUpstreamServer{objects: make(map[string][]map[string]any)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the server base URL.
func (m *MockUpstreamServer) URL() string {
	return m.Server.URL
}

// SetRecords replaces the records of object.
func (m *MockUpstreamServer) SetRecords(object string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[object] = records
}

// FailNext makes the next len(statuses) requests fail with the given
// HTTP statuses.
func (m *MockUpstreamServer) FailNext(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, statuses...)
}

// GetCaptures returns all captured requests.
func (m *MockUpstreamServer) GetCaptures() []UpstreamCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]UpstreamCapture, len(m.captures))
	copy(result, m.captures)
	return result
}

func (m *MockUpstreamServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.captures = append(m.captures, UpstreamCapture{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		At:     time.Now(),
	})
	var fail int
	if len(m.failures) > 0 {
		fail, m.failures = m.failures[0], m.failures[1:]
	}
	m.mu.Unlock()

	if fail != 0 {
		if fail == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		http.Error(w, http.StatusText(fail), fail)
		return
	}
	if r.Header.Get(appIDHeader) != MockApplicationID || r.Header.Get(apiKeyHeader) != MockAPIKey {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/v1/applications/"+MockApplicationID:
		writeJSON(w, map[string]any{"application": map[string]any{"id": MockApplicationID}})
	case strings.HasPrefix(r.URL.Path, "/v1/objects/") && strings.HasSuffix(r.URL.Path, "/records"):
		object := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/objects/"), "/records")
		m.servePage(w, r, object)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockUpstreamServer) servePage(w http.ResponseWriter, r *http.Request, object string) {
	m.mu.Lock()
	records, ok := m.objects[object]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("rows_per_page"))
	if size < 1 {
		size = 1000
	}

	totalPages := (len(records) + size - 1) / size
	start := (page - 1) * size
	end := start + size
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	writeJSON(w, map[string]any{
		"records":       records[start:end],
		"current_page":  page,
		"total_pages":   totalPages,
		"total_records": len(records),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
