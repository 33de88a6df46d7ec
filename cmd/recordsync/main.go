// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Command recordsync runs one-shot syncs and inspects the local cache from
// the command line.
//
//	recordsync sync                 # every scheduled collection
//	recordsync sync permits --json  # one collection, JSON output
//	recordsync outcomes --collection permits --limit 5
//	recordsync collections
//	recordsync ping
//
// Exit status is 0 when every requested collection synced, 1 when any
// failed and 2 when the configuration is invalid.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
