/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/server"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh every enabled list once",
	Long:  "Run a single batch refresh against the configured database and exit. Fails if any list fails.",
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	// A one-shot run never competes for the scheduler lease or joins the relay.
	cfg.SchedulerEnabled = false
	cfg.LeaderElectionEnabled = false
	cfg.EventRelay = ""

	ctx, stop := signalContext()
	defer stop()

	srv, err := server.New(ctx, cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer srv.Close()

	results, err := srv.RefreshOnce(ctx, models.TriggerManual)
	failed := 0
	for _, res := range results {
		if res.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "ok      %s %s (%d items)\n", res.ListID, res.UserID, res.ItemCount)
			continue
		}
		failed++
		fmt.Fprintf(cmd.OutOrStdout(), "failed  %s %s: %s\n", res.ListID, res.UserID, res.Message)
	}
	if err != nil {
		return fmt.Errorf("batch refresh: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d refreshes failed", failed, len(results))
	}
	return nil
}
