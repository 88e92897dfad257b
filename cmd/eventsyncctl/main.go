// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

// Command eventsyncctl runs EventSync operations against the configured store
// without starting the server: one-off syncs, duplicate reconciliation, slug
// resolution and cache lookups.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/eventsync/internal/app"
	"github.com/tomtom215/eventsync/internal/config"
	"github.com/tomtom215/eventsync/internal/logging"
	intsync "github.com/tomtom215/eventsync/internal/sync"
)

// cli carries flags and the injectable collaborators of every command.
type cli struct {
	configPath string
	jsonOut    bool
	logLevel   string

	out    io.Writer
	errOut io.Writer

	load  func(path string) (*config.Config, error)
	build func(ctx context.Context, cfg *config.Config, reporter intsync.ProgressReporter) (*app.Components, error)
}

func newCLI() *cli {
	return &cli{
		out:    os.Stdout,
		errOut: os.Stderr,
		load: func(path string) (*config.Config, error) {
			return config.Loader{Path: path}.Load()
		},
		build: func(ctx context.Context, cfg *config.Config, reporter intsync.ProgressReporter) (*app.Components, error) {
			return app.Build(ctx, cfg, reporter)
		},
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventsyncctl",
		Short: "Administer the EventSync event cache",
		Long: `eventsyncctl operates directly on the EventSync store.

Configuration is read the same way the server reads it: built-in defaults,
then config.yaml (or --config / CONFIG_PATH), then environment variables.
Do not run write commands against a badger store the server has open.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.Config{
				Level:     c.logLevel,
				Format:    "console",
				Timestamp: true,
				Output:    c.errOut,
			})
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSyncCmd(c),
		newReconcileCmd(c),
		newResolveCmd(c),
		newLookupCmd(c),
		newStatsCmd(c),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newCLI()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
