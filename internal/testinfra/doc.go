// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package testinfra provides test infrastructure shared across packages.
//
// # Mock Upstream
//
// MockUpstreamServer is an httptest server speaking the upstream records
// API. It serves fixture records page by page, checks credentials and
// captures every request:
//
//	srv := testinfra.NewMockUpstreamServer(t)
//	srv.SetRecords("object_1", records)
//	cfg.Upstream.URL = srv.URL()
//
// # Containers
//
// Files built with the integration tag use testcontainers-go to start real
// services. PostgresContainer backs the pgstore integration tests:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, pg)
//
// These tests require Docker and are skipped gracefully without it.
package testinfra
