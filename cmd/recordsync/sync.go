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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/recordsync/internal/app"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

// syncReport is the --json output of the sync command.
type syncReport struct {
	AllSucceeded bool              `json:"all_succeeded"`
	Outcomes     []recsync.Outcome `json:"outcomes"`
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync [collection...]",
		Short: "Sync collections from upstream into the local store",
		Long: `Sync the named collections, or every scheduled collection when none are
named. Collections run in parallel up to sync.max_concurrent_collections and
are reported in the order requested.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			// Reject unknown names before opening anything.
			if _, err := cfg.CollectionsByName(args); err != nil {
				return configError(err)
			}

			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			daemon, err := opts.findDaemon(ctx, cfg)
			if err != nil {
				return err
			}

			var outcomes []recsync.Outcome
			if daemon != nil {
				outcomes, err = daemon.sync(ctx, args)
			} else {
				outcomes, err = syncInProcess(ctx, cfg, args)
			}
			if err != nil {
				if errors.Is(err, config.ErrUnknownCollection) {
					return configError(err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				err = writeJSON(out, syncReport{
					AllSucceeded: recsync.AllSucceeded(outcomes),
					Outcomes:     outcomes,
				})
			} else {
				err = printOutcomes(out, outcomes)
			}
			if err != nil {
				return err
			}

			if !recsync.AllSucceeded(outcomes) {
				return &exitError{code: exitFailed}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output outcomes as JSON")
	return cmd
}

// syncInProcess runs one sync with components opened by this process. A
// history directory held elsewhere only costs the history entry.
func syncInProcess(ctx context.Context, cfg *config.Config, names []string) ([]recsync.Outcome, error) {
	components, err := app.Build(ctx, cfg, app.Options{SkipLockedHistory: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing components")
		}
	}()
	return components.Manager.TriggerSync(ctx, names...)
}

// printOutcomes writes one line per outcome, errors indented below.
func printOutcomes(w io.Writer, outcomes []recsync.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range outcomes {
		status := "ok"
		if !o.Success {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\trecords=%d\tduration=%dms\t%s\n",
			o.Collection, status, o.RecordsSynced, o.DurationMS, o.Timestamp.Format(time.RFC3339))
		for _, e := range o.Errors {
			fmt.Fprintf(tw, "\t  %s\n", strings.ReplaceAll(e, "\n", " "))
		}
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
