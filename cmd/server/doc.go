// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package main is the entry point for the recordsync daemon.

recordsync mirrors collections of an upstream record store API into a local
DuckDB or PostgreSQL database. Each collection is fetched page by page under
a shared request-rate ceiling, normalized, and upserted by record id.

# Application Architecture

	Root ("recordsync")
	├── storage-layer
	│   └── history-gc
	├── messaging-layer
	│   ├── websocket-hub
	│   ├── nats-server (NATS_ENABLED + NATS_EMBEDDED)
	│   └── sync-manager (interval scheduler)
	└── api-layer
	    └── api-server

Component initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog with JSON or console output
 3. Request governor, upstream client with circuit breaker, result cache
 4. Local store: DuckDB (default) or PostgreSQL
 5. Outcome history (BadgerDB) and NATS publisher, when enabled
 6. Orchestrator and sync manager
 7. Supervisor tree and HTTP server

# Configuration

Collections are declared in the config file. Everything else can be set
from the environment, for example:

	UPSTREAM_URL=https://api.knack.com
	UPSTREAM_APPLICATION_ID=...
	UPSTREAM_API_KEY=...
	UPSTREAM_RATE_LIMIT=10
	SYNC_INTERVAL=15m
	DB_DRIVER=duckdb
	DUCKDB_PATH=/data/recordsync.duckdb
	HTTP_PORT=8471

Missing credentials or an invalid collection stop startup before any
network call.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The tree stops the HTTP server,
the scheduler, the websocket hub and the embedded NATS server, each within
HTTP_SHUTDOWN_TIMEOUT; stores are closed afterwards.

See cmd/recordsync for one-shot runs from the command line.
*/
package main
