// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/schema"
	recsync "github.com/tomtom215/recordsync/internal/sync"
	"github.com/tomtom215/recordsync/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// OutcomesQuery holds the query parameters of GET /api/v1/outcomes.
type OutcomesQuery struct {
	Collection string `json:"collection" validate:"omitempty,identifier"`
	Limit      int    `json:"limit" validate:"gte=1,lte=1000"`
}

// CollectionView describes one configured collection and its stored state.
type CollectionView struct {
	Name          string     `json:"name"`
	Object        string     `json:"object"`
	Table         string     `json:"table"`
	Disabled      bool       `json:"disabled"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	RecordsSynced int        `json:"records_synced"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	InProgress    bool              `json:"in_progress"`
	LastRunAt     *time.Time        `json:"last_run_at,omitempty"`
	LastRun       []recsync.Outcome `json:"last_run"`
	AllSucceeded  bool              `json:"all_succeeded"`
	Governor      *GovernorStatus   `json:"governor,omitempty"`
	Cache         *CacheStatus      `json:"cache,omitempty"`
	Breaker       string            `json:"upstream_breaker,omitempty"`
}

// GovernorStatus reports the request governor window.
type GovernorStatus struct {
	InWindow int `json:"in_window"`
	Limit    int `json:"limit"`
}

// CacheStatus reports result cache counters.
type CacheStatus struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Keys      int64   `json:"keys"`
	HitRate   float64 `json:"hit_rate"`
}

// queryLimit parses the limit query parameter.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	return strconv.Atoi(raw)
}

// Outcomes handles GET /api/v1/outcomes?collection=&limit=, newest first.
func (h *Handler) Outcomes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.history == nil {
		rw.ServiceUnavailable("Outcome history is disabled")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		rw.BadRequest("limit must be an integer")
		return
	}
	q := OutcomesQuery{Collection: r.URL.Query().Get("collection"), Limit: limit}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	outcomes, err := h.history.List(r.Context(), q.Collection, q.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if outcomes == nil {
		outcomes = []recsync.Outcome{}
	}
	rw.List(outcomes, len(outcomes))
}

// Collections handles GET /api/v1/collections.
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	states, err := h.store.SyncStates(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	byName := make(map[string]schema.SyncState, len(states))
	for _, s := range states {
		byName[s.Collection] = s
	}

	cols := h.sync.Collections()
	views := make([]CollectionView, len(cols))
	for i, col := range cols {
		views[i] = CollectionView{
			Name:     col.Name,
			Object:   col.Object,
			Table:    col.Table,
			Disabled: col.Disabled,
		}
		if s, ok := byName[col.Name]; ok {
			at := s.LastSyncedAt
			views[i].LastSyncedAt = &at
			views[i].RecordsSynced = s.RecordsSynced
		}
	}
	rw.List(views, len(views))
}

// PreviewRecords handles GET /api/v1/collections/{collection}/records/preview.
// Records are fetched and normalized but not written; repeated calls within
// the cache TTL are served from the result cache.
func (h *Handler) PreviewRecords(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, err := queryLimit(r)
	if err != nil || limit < 1 || limit > maxListLimit {
		rw.BadRequest("limit must be an integer between 1 and 1000")
		return
	}

	records, err := h.preview.Preview(r.Context(), chi.URLParam(r, "collection"))
	switch {
	case errors.Is(err, config.ErrUnknownCollection):
		rw.NotFound(err.Error())
		return
	case err != nil:
		rw.ExternalServiceError("upstream", err)
		return
	}

	total := len(records)
	if len(records) > limit {
		records = records[:limit]
	}
	rw.List(records, total)
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	outcomes, at := h.sync.LastRun()
	resp := StatusResponse{
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		InProgress:    h.sync.InProgress(),
		LastRun:       outcomes,
		AllSucceeded:  recsync.AllSucceeded(outcomes),
	}
	if !at.IsZero() {
		resp.LastRunAt = &at
	}
	if h.governor != nil {
		resp.Governor = &GovernorStatus{InWindow: h.governor.Len(), Limit: h.governor.Limit()}
	}
	if stats, ok := h.preview.CacheStats(); ok {
		cs := &CacheStatus{
			Hits:      stats.Hits,
			Misses:    stats.Misses,
			Evictions: stats.Evictions,
			Keys:      stats.TotalKeys,
		}
		if lookups := stats.Hits + stats.Misses; lookups > 0 {
			cs.HitRate = float64(stats.Hits) / float64(lookups) * 100
		}
		resp.Cache = cs
	}
	if h.upstream != nil {
		resp.Breaker = h.upstream.State()
	}

	NewResponseWriter(w, r).Success(resp)
}
