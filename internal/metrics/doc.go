// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package metrics declares the Prometheus instrumentation for recordsync.

All collectors are registered on the default registry through promauto and
served by the HTTP API at /metrics.

# Sync Metrics

  - recordsync_sync_duration_seconds{collection}: wall time of one collection sync
  - recordsync_sync_records_total{collection}: rows upserted into the local store
  - recordsync_sync_errors_total{collection,error_type}: failed collection syncs
  - recordsync_sync_last_success_timestamp{collection}: unix time of the last success
  - recordsync_sync_invalid_records_total{collection}: records failing required-field checks
  - recordsync_sync_runs_total{result}: complete runs, labeled success or partial

# Upstream Metrics

  - recordsync_upstream_requests_total{status}: HTTP responses by status class
  - recordsync_upstream_pages_total{collection}: pages fetched
  - recordsync_governor_wait_seconds: time callers spent throttled
  - recordsync_retry_attempts_total{operation}: retries issued by the retry policy
  - recordsync_circuit_breaker_*: breaker state and outcomes

# Cache and Store Metrics

  - recordsync_cache_hits_total, recordsync_cache_misses_total
  - recordsync_store_upsert_duration_seconds{driver}

# See Also

  - internal/sync: records sync and page metrics
  - internal/upstream: records request and breaker metrics
*/
package metrics
