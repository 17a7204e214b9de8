/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MigrationReport summarises one legacy directory import.
type MigrationReport struct {
	Migrated []string          `json:"migrated"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// MigrateLegacy imports every *.json definition in dir. Each file is saved
// before it is removed, so an interrupted run can simply be repeated. A
// missing directory means there is nothing to migrate.
func (s *GormStore) MigrateLegacy(ctx context.Context, dir string) (MigrationReport, error) {
	report := MigrationReport{Failed: map[string]string{}}
	if dir == "" {
		return report, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read legacy dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(dir, name)
		id, err := s.migrateFile(ctx, path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("legacy list not migrated")
			report.Failed[name] = err.Error()
			continue
		}
		if id == "" {
			continue
		}
		s.logger.Info().Str("file", path).Str("list_id", id).Msg("legacy list migrated")
		report.Migrated = append(report.Migrated, id)
	}
	return report, nil
}

func (s *GormStore) migrateFile(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	spec, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if err := s.Save(ctx, spec); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove legacy copy: %w", err)
	}
	return spec.ID, nil
}
