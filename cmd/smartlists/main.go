/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/smartlists/internal/config"
	"github.com/friendsincode/smartlists/internal/logbuffer"
	"github.com/friendsincode/smartlists/internal/logging"
	"github.com/friendsincode/smartlists/internal/server"
	"github.com/friendsincode/smartlists/internal/version"
)

var (
	logger zerolog.Logger
	logBuf *logbuffer.Buffer
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "smartlists",
	Short:   "Rule-driven smart playlists and collections",
	Long:    "smartlists keeps playlists and collections in sync with saved rule sets evaluated against a media catalog.",
	Version: version.String(),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the smartlists server",
	Long:  "Start the HTTP API, the refresh consumer and the scheduled batch refresh",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(cfg.LogBufferSize)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	srv, err := server.New(ctx, cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info().Msg("smartlists stopped")
	return nil
}
