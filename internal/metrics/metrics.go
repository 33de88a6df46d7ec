// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordsync_sync_duration_seconds",
			Help:    "Duration of a single collection sync in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"collection"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_sync_records_total",
			Help: "Total number of records upserted into the local store",
		},
		[]string{"collection"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_sync_errors_total",
			Help: "Total number of failed collection syncs by error type",
		},
		[]string{"collection", "error_type"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recordsync_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync per collection",
		},
		[]string{"collection"},
	)

	SyncInvalidRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_sync_invalid_records_total",
			Help: "Total number of records missing required fields",
		},
		[]string{"collection"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_sync_runs_total",
			Help: "Total number of multi-collection sync runs by result",
		},
		[]string{"result"}, // "success", "partial"
	)

	// Upstream Metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_upstream_requests_total",
			Help: "Total number of upstream HTTP requests by status class",
		},
		[]string{"status"}, // "2xx", "4xx", "429", "5xx", "transport"
	)

	UpstreamPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_upstream_pages_total",
			Help: "Total number of upstream pages fetched",
		},
		[]string{"collection"},
	)

	GovernorWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recordsync_governor_wait_seconds",
			Help:    "Time callers spent waiting for a request slot",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_retry_attempts_total",
			Help: "Total number of retries issued by the retry policy",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recordsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_circuit_breaker_requests_total",
			Help: "Requests passing through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsync_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsync_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	// Store Metrics
	StoreUpsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordsync_store_upsert_duration_seconds",
			Help:    "Duration of batch upserts into the local store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordsync_api_request_duration_seconds",
			Help:    "Duration of operator API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_events_published_total",
			Help: "Sync outcome events published by result",
		},
		[]string{"result"},
	)

	// WAL Metrics
	WALEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsync_wal_entries_total",
			Help: "Outcome event WAL entries by lifecycle step (written, confirmed, retried, expired, dropped)",
		},
		[]string{"step"},
	)

	WALPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordsync_wal_pending_entries",
			Help: "Outcome events waiting to be re-published",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordsync_websocket_clients",
			Help: "Connected outcome feed clients",
		},
	)

	WebSocketFramesIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsync_websocket_client_frames_ignored_total",
			Help: "Data frames sent by outcome feed clients and discarded",
		},
	)
)

// RecordCollectionSync records the result of one collection sync. An empty
// errorType marks success.
func RecordCollectionSync(collection string, duration time.Duration, records int, errorType string) {
	SyncDuration.WithLabelValues(collection).Observe(duration.Seconds())
	if errorType != "" {
		SyncErrors.WithLabelValues(collection, errorType).Inc()
		return
	}
	SyncRecords.WithLabelValues(collection).Add(float64(records))
	SyncLastSuccess.WithLabelValues(collection).Set(float64(time.Now().Unix()))
}

// RecordSyncRun records the aggregate result of a SyncAll run.
func RecordSyncRun(allSucceeded bool) {
	if allSucceeded {
		SyncRuns.WithLabelValues("success").Inc()
		return
	}
	SyncRuns.WithLabelValues("partial").Inc()
}

// RecordUpstreamResponse classifies an upstream HTTP status. Zero means the
// request never produced a response.
func RecordUpstreamResponse(status int) {
	UpstreamRequests.WithLabelValues(statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "transport"
	case status == 429:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// RecordStoreUpsert observes a batch upsert duration.
func RecordStoreUpsert(driver string, duration time.Duration) {
	StoreUpsertDuration.WithLabelValues(driver).Observe(duration.Seconds())
}

// RecordAPIRequest observes an operator API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
