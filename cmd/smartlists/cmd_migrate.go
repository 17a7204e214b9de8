/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/smartlists/internal/db"
	"github.com/friendsincode/smartlists/internal/store"
)

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Import file-based list definitions into the database",
	Long:  "Import every *.json definition from a legacy directory. Imported files are removed; failures are left in place.",
	RunE:  runMigrateLegacy,
}

var legacyDir string

func init() {
	rootCmd.AddCommand(migrateLegacyCmd)
	migrateLegacyCmd.Flags().StringVar(&legacyDir, "dir", "", "Legacy definitions directory (defaults to SMARTLISTS_LEGACY_DIR)")
}

func runMigrateLegacy(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	dir := legacyDir
	if dir == "" {
		dir = cfg.LegacyDir
	}
	if dir == "" {
		return fmt.Errorf("no legacy directory: pass --dir or set SMARTLISTS_LEGACY_DIR")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	report, err := store.New(database, logger).MigrateLegacy(context.Background(), dir)
	if err != nil {
		return fmt.Errorf("migrate legacy lists: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, id := range report.Migrated {
		fmt.Fprintf(out, "migrated %s\n", id)
	}
	files := make([]string, 0, len(report.Failed))
	for file := range report.Failed {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		fmt.Fprintf(out, "failed   %s: %s\n", file, report.Failed[file])
	}
	if len(files) > 0 {
		return fmt.Errorf("%d definition(s) could not be migrated", len(files))
	}
	return nil
}
