/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/friendsincode/smartlists/internal/audit"
	"github.com/friendsincode/smartlists/internal/db"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/integrity"
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check list mappings against stored artifacts",
	Long:  "Scan for mappings that point at missing artifacts, artifacts no list manages and orphaned member rows. With --repair every repairable finding is fixed.",
	RunE:  runIntegrity,
}

var repairFindings bool

func init() {
	rootCmd.AddCommand(integrityCmd)
	integrityCmd.Flags().BoolVar(&repairFindings, "repair", false, "Repair every repairable finding")
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	svc := integrity.NewService(database, audit.NewService(database, events.NewBus(), logger), logger)
	return checkIntegrity(context.Background(), cmd.OutOrStdout(), svc, repairFindings)
}

// integrityChecker is the part of integrity.Service the command drives.
type integrityChecker interface {
	Scan(ctx context.Context) (*integrity.Report, error)
	Repair(ctx context.Context, input integrity.RepairInput) (integrity.RepairResult, error)
}

func checkIntegrity(ctx context.Context, out io.Writer, svc integrityChecker, repair bool) error {
	report, err := svc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if report.Total == 0 {
		fmt.Fprintln(out, "no findings")
		return nil
	}

	unresolved := 0
	for _, f := range report.Findings {
		fmt.Fprintf(out, "%-8s %-26s %s  %s\n", f.Severity, f.Type, f.ResourceID, f.Summary)
		if !repair || !f.Repairable {
			unresolved++
			continue
		}
		res, err := svc.Repair(ctx, integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			unresolved++
			fmt.Fprintf(out, "         repair failed: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "         %s\n", res.Message)
	}
	if unresolved > 0 {
		return fmt.Errorf("%d finding(s) unresolved", unresolved)
	}
	return nil
}
