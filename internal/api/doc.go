// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package api provides the operator HTTP API of the recordsync daemon.

Routes (chi):

	POST /api/v1/sync                                    sync all enabled collections
	POST /api/v1/sync/{collection}                       sync one collection
	GET  /api/v1/outcomes?collection=&limit=             outcome history, newest first
	GET  /api/v1/collections                             configured collections and stored state
	GET  /api/v1/collections/{collection}/records/preview  normalized records, not written
	GET  /api/v1/status                                  last run, governor window, cache, breaker
	GET  /api/v1/health                                  liveness plus store ping
	GET  /api/v1/health/upstream                         upstream reachability
	GET  /api/v1/ws                                      websocket outcome feed
	GET  /metrics                                        Prometheus metrics

The sync endpoints answer 200 when every outcome succeeded and 207
(Multi-Status) when any failed; the outcomes are in the body either way.
An unknown collection is 404 and an overlapping run is 409.

Every JSON response uses one envelope:

	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "meta": {...}}

Middleware, outermost first: request ID (bridged into logging), real IP,
access log, panic recovery, CORS (go-chi/cors), then per-IP rate limiting
(go-chi/httprate) on /api/v1 with a stricter budget for sync triggers.
*/
package api
