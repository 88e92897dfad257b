// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/eventsync/internal/app"
	"github.com/tomtom215/eventsync/internal/models"
	"github.com/tomtom215/eventsync/internal/resolver"
	"github.com/tomtom215/eventsync/internal/store"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

const dateLayout = "2006-01-02"

// open loads configuration and builds the components for one command.
func (c *cli) open(ctx context.Context, reporter intsync.ProgressReporter) (*app.Components, error) {
	cfg, err := c.load(c.configPath)
	if err != nil {
		return nil, err
	}
	return c.build(ctx, cfg, reporter)
}

func (c *cli) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func closeComponents(components *app.Components, errp *error) {
	if err := components.Close(); err != nil && *errp == nil {
		*errp = err
	}
}

func newSyncCmd(c *cli) *cobra.Command {
	var (
		full     bool
		dateFrom string
		dateTo   string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization against the external source",
		Long: `Run one synchronization and print its summary.

Without flags an incremental sync covers the configured lookback. --full walks
the full history window. --from and --to (YYYY-MM-DD) bound the window explicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			opts, err := syncOptions(full, dateFrom, dateTo)
			if err != nil {
				return err
			}

			components, err := c.open(cmd.Context(), &consoleReporter{out: c.errOut, quiet: c.jsonOut})
			if err != nil {
				return err
			}
			defer closeComponents(components, &err)

			start := time.Now()
			result, err := components.Orchestrator.Sync(cmd.Context(), components.Config, opts)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(result)
			}
			fmt.Fprintf(c.out, "Sync complete in %v: %s\n", time.Since(start).Round(time.Millisecond), result.Summary())
			for _, msg := range result.Errors {
				fmt.Fprintf(c.out, "  error: %s\n", msg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "sync the full history window")
	cmd.Flags().StringVar(&dateFrom, "from", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "to", "", "window end date (YYYY-MM-DD, exclusive)")
	return cmd
}

func syncOptions(full bool, dateFrom, dateTo string) (intsync.Options, error) {
	opts := intsync.Options{FullSync: full}
	if dateFrom != "" {
		from, err := time.Parse(dateLayout, dateFrom)
		if err != nil {
			return opts, fmt.Errorf("invalid --from date %q: %w", dateFrom, err)
		}
		opts.DateFrom = &from
	}
	if dateTo != "" {
		to, err := time.Parse(dateLayout, dateTo)
		if err != nil {
			return opts, fmt.Errorf("invalid --to date %q: %w", dateTo, err)
		}
		opts.DateTo = &to
	}
	if opts.DateFrom != nil && opts.DateTo != nil && !opts.DateTo.After(*opts.DateFrom) {
		return opts, errors.New("--to must be after --from")
	}
	return opts, nil
}

func newReconcileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove legacy duplicate records sharing an external id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			components, err := c.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeComponents(components, &err)

			report, err := components.Orchestrator.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(report)
			}
			fmt.Fprintf(c.out, "Removed %d duplicates across %d external ids\n",
				report.DuplicatesRemoved, report.GroupsProcessed)
			for _, d := range report.Details {
				fmt.Fprintf(c.out, "  %s: kept %s, deleted %v\n", d.ExternalID, d.KeptID, d.DeletedIDs)
			}
			return nil
		},
	}
}

func newResolveCmd(c *cli) *cobra.Command {
	var noLink bool
	cmd := &cobra.Command{
		Use:   "resolve <slug>",
		Short: "Resolve a slug through the cache and the external source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			components, err := c.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeComponents(components, &err)

			res, err := components.Resolver.Resolve(cmd.Context(), args[0], resolver.Options{AllowCacheLink: !noLink})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(res)
			}
			fmt.Fprintf(c.out, "Outcome: %s\n", res.Outcome)
			if res.Event != nil {
				printEvent(c, res.Event)
			}
			if res.Event == nil && len(res.Candidates) > 0 {
				fmt.Fprintf(c.out, "%d candidates, none matched uniquely\n", len(res.Candidates))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noLink, "no-cache-link", false, "do not cache a newly found event")
	return cmd
}

func newLookupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <external-id>",
		Short: "Show the cached record holding an external id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			components, err := c.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeComponents(components, &err)

			rec, err := components.Store.FindByExternalID(cmd.Context(), models.ExternalID(args[0]))
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no cached record for external id %s", args[0])
			}
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(rec)
			}
			fmt.Fprintf(c.out, "Record %s (version %d, %s)\n", rec.ID, rec.Provenance.SyncedVersion, rec.Provenance.Source)
			printEvent(c, &rec.Projection)
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			components, err := c.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeComponents(components, &err)

			n, err := components.Store.Count(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(map[string]interface{}{
					"records": n,
					"backend": components.Config.Store.Backend,
				})
			}
			fmt.Fprintf(c.out, "Records: %d (%s)\n", n, components.Config.Store.Backend)
			return nil
		},
	}
}

func printEvent(c *cli, e *models.ExternalEvent) {
	fmt.Fprintf(c.out, "  %s\n", e.Title)
	if e.ID != "" {
		fmt.Fprintf(c.out, "  id:    %s\n", e.ID)
	}
	if !e.StartDateTime.IsZero() {
		fmt.Fprintf(c.out, "  start: %s\n", e.StartDateTime.Format(time.RFC3339))
	}
	if e.URL != "" {
		fmt.Fprintf(c.out, "  url:   %s\n", e.URL)
	}
}
