// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package services adapts recordsync components to suture's Serve(ctx) model.

	SyncService          Start/Stop manager -> Serve
	APIServerService     bind + Serve + graceful Shutdown
	WebSocketHubService  RunWithContext
	NATSServerService    shutdown of an already started embedded server

Each wrapper returns ctx.Err() on a clean stop and a wrapped error otherwise,
so the supervisor can tell a shutdown from a crash. NATSServerService
returns suture.ErrDoNotRestart when the server is no longer running, since
the embedded server cannot be restarted in place.
*/
package services
