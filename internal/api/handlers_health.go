// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 5 * time.Second

// HealthStatus is returned by the health endpoints.
type HealthStatus struct {
	Status          string     `json:"status"` // healthy or degraded
	Version         string     `json:"version"`
	StoreConnected  bool       `json:"store_connected"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	UptimeSeconds   float64    `json:"uptime_seconds"`
	UpstreamBreaker string     `json:"upstream_breaker,omitempty"`
}

// Health handles GET /api/v1/health. It always answers 200; a failed
// store ping reports status "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := HealthStatus{
		Status:         "healthy",
		Version:        h.version,
		StoreConnected: h.store.Ping(ctx) == nil,
		UptimeSeconds:  time.Since(h.startTime).Seconds(),
	}
	if !health.StoreConnected {
		health.Status = "degraded"
	}
	if _, at := h.sync.LastRun(); !at.IsZero() {
		health.LastRunAt = &at
	}
	if h.upstream != nil {
		health.UpstreamBreaker = h.upstream.State()
	}

	NewResponseWriter(w, r).Success(health)
}

// HealthUpstream handles GET /api/v1/health/upstream. It pings the external
// API through the circuit breaker and answers 503 when unreachable.
func (h *Handler) HealthUpstream(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.upstream == nil {
		rw.ServiceUnavailable("Upstream client not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.upstream.Ping(ctx); err != nil {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeExternalServiceFail,
			"Upstream unreachable", map[string]string{
				"cause":   err.Error(),
				"breaker": h.upstream.State(),
			})
		return
	}
	rw.Success(map[string]string{"status": "reachable", "breaker": h.upstream.State()})
}
