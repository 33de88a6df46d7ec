// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recordsync/internal/upstream"
)

const pingTimeout = 30 * time.Second

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check upstream reachability and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			timeout := cfg.Upstream.Timeout
			if timeout <= 0 {
				timeout = pingTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := upstream.NewClient(cfg.Upstream).Ping(ctx); err != nil {
				return fmt.Errorf("upstream %s: %w", cfg.Upstream.URL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upstream %s ok\n", cfg.Upstream.URL)
			return nil
		},
	}
}
