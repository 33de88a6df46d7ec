// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package middleware provides HTTP middleware for the operator API.
//
// All middleware uses the func(http.Handler) http.Handler shape so it can
// be installed with chi's r.Use:
//
//	r.Use(middleware.RequestID)
//	r.Use(middleware.AccessLog)
//	r.Use(middleware.PrometheusMetrics)
//
// RequestID must run first; the other two read the request ID it stores.
// PrometheusMetrics labels requests with the chi route pattern
// (/api/v1/sync/{collection}) rather than the raw path.
package middleware
