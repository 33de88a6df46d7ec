// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recordsync/internal/api"
	"github.com/tomtom215/recordsync/internal/app"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/schema"
)

// collectionRow is one line of the collections command. It matches the
// API's view so daemon answers print the same way.
type collectionRow = api.CollectionView

func newCollectionsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List configured collections and their last successful sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			daemon, err := opts.findDaemon(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			var rows []collectionRow
			if daemon != nil {
				rows, err = daemon.collections(cmd.Context())
			} else {
				rows, err = localCollections(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tOBJECT\tTABLE\tLAST SYNC\tRECORDS")
			for _, r := range rows {
				last := "never"
				if r.LastSyncedAt != nil {
					last = r.LastSyncedAt.Format(time.RFC3339)
				}
				if r.Disabled {
					last += " (disabled)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Name, r.Object, r.Table, last, r.RecordsSynced)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output collections as JSON")
	return cmd
}

// localCollections reads sync state from the store directly. DuckDB allows
// one process to hold the file, so this fails while another one has it.
func localCollections(ctx context.Context, cfg *config.Config) ([]collectionRow, error) {
	store, err := app.OpenStore(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("%w; if a daemon holds the store, pass its API address with --server", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing store")
		}
	}()

	states, err := store.SyncStates(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]schema.SyncState, len(states))
	for _, s := range states {
		byName[s.Collection] = s
	}

	rows := make([]collectionRow, 0, len(cfg.Collections))
	for _, col := range cfg.Collections {
		row := collectionRow{Name: col.Name, Object: col.Object, Table: col.Table, Disabled: col.Disabled}
		if s, ok := byName[col.Name]; ok {
			at := s.LastSyncedAt
			row.LastSyncedAt = &at
			row.RecordsSynced = s.RecordsSynced
		}
		rows = append(rows, row)
	}
	return rows, nil
}
