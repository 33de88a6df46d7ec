// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/recordsync/internal/config"
)

func newRecorder(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouterFallbacks(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
		code   string
	}{
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, ErrCodeNotFound},
		{"root", http.MethodGet, "/", http.StatusNotFound, ErrCodeNotFound},
		{"wrong method", http.MethodGet, "/api/v1/sync", http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed},
		{"ws without hub", http.MethodGet, "/api/v1/ws", http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if env := decode(t, rec); env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", env.Error, tt.code)
			}
		})
	}
}

func TestRouterRequestIDInErrors(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if env := decode(t, rec); env.Error.RequestID != "trace-123" || env.Meta.RequestID != "trace-123" {
		t.Errorf("request IDs = %q / %q", env.Error.RequestID, env.Meta.RequestID)
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	rec := newAPIFixture(t).do(t, http.MethodGet, "/api/v1/status", "")

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Content-Type":           "application/json; charset=utf-8",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/api/v1/status", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "recordsync_api_request_duration_seconds") {
		t.Error("metrics output missing API request histogram")
	}
}

func TestRouterCORS(t *testing.T) {
	h := NewHandler(Dependencies{Sync: &fakeSync{}, Preview: &fakePreview{}, Store: &fakeStore{}})
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://ops.example.com"}
	cfg.RateLimitDisabled = true
	handler := NewRouter(h, NewChiMiddleware(cfg), nil).SetupChi()

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if got := preflight("https://ops.example.com").Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("allowed origin header = %q", got)
	}
	if got := preflight("https://evil.example.com").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin header = %q, want empty", got)
	}
}

func TestRouterRateLimit(t *testing.T) {
	h := NewHandler(Dependencies{Sync: &fakeSync{}, Preview: &fakePreview{}, Store: &fakeStore{}})
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	handler := NewRouter(h, NewChiMiddleware(cfg), nil).SetupChi()

	for i := 0; i < 2; i++ {
		if rec := newRecorder(handler, http.MethodGet, "/api/v1/status"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := newRecorder(handler, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if env := decode(t, rec); env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v", env.Error)
	}

	// /metrics sits outside the limited group.
	if rec := newRecorder(handler, http.MethodGet, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}
}

func TestChiMiddlewareConfigFromSecurity(t *testing.T) {
	cfg := ChiMiddlewareConfigFromSecurity(config.SecurityConfig{
		CORSOrigins:   []string{"*"},
		RateLimitReqs: 50,
	})
	if cfg.RateLimitRequests != 50 || cfg.RateLimitWindow != time.Minute || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("config = %+v", cfg)
	}
}
