// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package upstream is the HTTP client for the external record store.
//
// Records are read page by page from
//
//	GET {url}/v1/objects/{object}/records?page=N&rows_per_page=M
//
// with the application id and API key sent as request headers. Each call
// issues one request. Rate limiting and retries are applied by the caller
// (internal/governor and internal/retry); this package only classifies
// failures:
//
//   - *QuotaError (wraps ErrRateLimited) for HTTP 429
//   - ErrUnauthorized for 401 and 403
//   - ErrCollectionNotFound for 404
//   - *StatusError for any other non-2xx status
//   - *DecodeError for malformed bodies
//
// IsRetryable and ErrorType give callers a uniform view of that taxonomy.
package upstream
