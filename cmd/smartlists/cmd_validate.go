/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check list definitions without saving them",
	Long:  "Validate one or more list definitions in JSON or YAML. Legacy single-owner definitions are accepted.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	eng := engine.New(zerolog.Nop())
	invalid := 0
	for _, path := range args {
		if !validateFile(cmd.OutOrStdout(), eng, path) {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d definitions invalid", invalid, len(args))
	}
	return nil
}

func validateFile(out io.Writer, eng *engine.Engine, path string) bool {
	spec, err := loadSpecFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", path, err)
		return false
	}
	issues := eng.ValidateSpec(spec)
	if len(issues) == 0 {
		fmt.Fprintf(out, "%s: ok\n", path)
		return true
	}
	fmt.Fprintf(out, "%s: %d issue(s)\n", path, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %v\n", issue)
	}
	return false
}

// loadSpecFile reads a definition from disk. YAML files are converted to
// JSON first so both go through the same normalisation.
func loadSpecFile(path string) (*models.ListSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}
	return store.Normalize(raw)
}
