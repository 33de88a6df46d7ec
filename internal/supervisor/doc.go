// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

/*
Package supervisor provides process supervision for recordsync using suture v4.

Every long-running component of the daemon is a suture.Service added to one of
three child supervisors:

	Root ("recordsync")
	├── storage-layer
	│   └── history-gc
	├── messaging-layer
	│   ├── websocket-hub
	│   ├── nats-server (when the embedded server is enabled)
	│   └── sync-manager
	└── api-layer
	    └── api-server

A crash in one layer restarts only that layer's services. Restarts back off
once FailureThreshold failures accumulate; failures decay at FailureDecay
per second.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	tree.AddStorageService(history.NewGCService(store, time.Hour))
	tree.AddMessagingService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewAPIServerService(srv, ":8471", 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tree.Run(ctx)

Run treats cancellation as a clean exit and logs services that ignored
ShutdownTimeout.

# See Also

  - internal/supervisor/services: Serve wrappers for sync, HTTP, websocket, NATS
  - github.com/thejerf/suture/v4
*/
package supervisor
