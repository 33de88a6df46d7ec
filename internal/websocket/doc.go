// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package websocket provides the live sync outcome feed.

A Hub keeps the set of connected clients and fans out messages queued with
BroadcastJSON. The orchestrator implements its outcome broadcaster with a
Hub, so every finished collection sync is pushed to connected operators as

	{"type": "sync_outcome", "data": {"collection": "permits", "success": true, ...}}

The feed is one-way. Each Client runs two goroutines: drain reads and
discards whatever the client sends so pong and close frames are processed
and disconnects are noticed, and feed writes queued messages plus keepalive
pings. A client that cannot keep up with the broadcast rate is dropped
instead of stalling the hub.

Clients may subscribe to a subset of collections with
/api/v1/ws?collection=permits,inspections. Payloads implementing
CollectionScoped (sync.Outcome does) are only sent to matching
subscribers; everything else goes to every client.

Usage:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	r.Handle("/api/v1/ws", websocket.NewHandler(hub, cfg.Security.CORSOrigins))

In the daemon the hub runs under the supervisor tree, which restarts it if
it ever returns unexpectedly.

Thread Safety:

All Hub methods are safe for concurrent use. BroadcastJSON never blocks.
*/
package websocket
