// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// CLI output goes to stdout, so logs default to warnings only.
const defaultLogLevel = "warn"

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error {
	return &exitError{code: exitConfig, err: err}
}

// rootOptions holds persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	serverURL  string
	local      bool
}

// loadConfig loads and validates configuration. Failures map to exitConfig
// and happen before any network call.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if o.configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, o.configPath); err != nil {
			return nil, configError(err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, configError(err)
	}

	level := o.logLevel
	if level == "" {
		level = defaultLogLevel
	}
	logging.Init(logging.Config{
		Level:     level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
		Output:    cmd.ErrOrStderr(),
	})
	return cfg, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "recordsync",
		Short: "Mirror upstream record store collections into a local database",
		Long: `recordsync fetches every page of the configured upstream collections under
a shared request-rate ceiling, normalizes the records and upserts them into
the local DuckDB or PostgreSQL store.

When a recordsync daemon answers on server.host:server.port (or --server),
sync, outcomes and collections go through its API: the daemon keeps the
DuckDB file and the history directory open, and both allow one writer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (overrides CONFIG_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level written to stderr (default warn)")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Daemon API base URL (default: try server.host:server.port)")
	root.PersistentFlags().BoolVar(&opts.local, "local", false, "Open the store directly even if a daemon answers")
	root.MarkFlagsMutuallyExclusive("server", "local")

	root.AddCommand(
		newSyncCmd(opts),
		newOutcomesCmd(opts),
		newCollectionsCmd(opts),
		newPingCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailed
}
