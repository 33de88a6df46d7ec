// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/history"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

func newOutcomesCmd(opts *rootOptions) *cobra.Command {
	var (
		collection string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List recorded sync outcomes, newest first",
		Long: `List outcomes from the history store. A running daemon is asked through
its API; otherwise the history directory is opened read-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return configError(errors.New("outcome history is disabled (history.enabled=false)"))
			}
			if collection != "" {
				if _, err := cfg.Collection(collection); err != nil {
					return configError(err)
				}
			}

			daemon, err := opts.findDaemon(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			var outcomes []recsync.Outcome
			if daemon != nil {
				outcomes, err = daemon.outcomes(cmd.Context(), collection, limit)
			} else {
				outcomes, err = readHistory(cmd.Context(), cfg.History, collection, limit)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), outcomes)
			}
			return printOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Only show this collection")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of outcomes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output outcomes as JSON")
	return cmd
}

// readHistory lists outcomes straight from the history directory. A
// directory that was never written holds no outcomes.
func readHistory(ctx context.Context, cfg config.HistoryConfig, collection string, limit int) ([]recsync.Outcome, error) {
	if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
		return []recsync.Outcome{}, nil
	}
	store, err := history.OpenReadOnly(cfg)
	if errors.Is(err, history.ErrLocked) {
		return nil, fmt.Errorf("%w; if a daemon holds it, pass its API address with --server", err)
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, collection, limit)
}
