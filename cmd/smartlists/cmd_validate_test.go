/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/engine"
)

const yamlSpec = `
id: old-movies
name: Old Movies
kind: Playlist
mediaTypes: [Movie]
owners: [u1]
expressionSets:
  - mode: And
    expressions:
      - field: ProductionYear
        operator: LessThan
        value: "1990"
order:
  - field: ProductionYear
    direction: Desc
`

const jsonSpec = `{"id":"fav","name":"Favourites","kind":"Playlist","mediaTypes":["Audio"],"owners":["u1"],
"expressionSets":[{"mode":"And","expressions":[{"field":"IsFavorite","operator":"Equals","value":"true"}]}]}`

const badSpec = `{"id":"bad","name":"Bad","kind":"Playlist","mediaTypes":["Audio"],"owners":["u1"],
"expressionSets":[{"mode":"And","expressions":[{"field":"Name","operator":"MatchRegex","value":"("}]}]}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSpecFile(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		body   string
		wantID string
	}{
		{"yaml", "list.yaml", yamlSpec, "old-movies"},
		{"yml", "list.YML", yamlSpec, "old-movies"},
		{"json", "list.json", jsonSpec, "fav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := loadSpecFile(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if spec.ID != tt.wantID {
				t.Fatalf("id = %q, want %q", spec.ID, tt.wantID)
			}
			if !spec.Enabled {
				t.Fatal("definitions without enabled should default to enabled")
			}
		})
	}
}

func TestLoadSpecFileErrors(t *testing.T) {
	if _, err := loadSpecFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := loadSpecFile(writeFile(t, "broken.yaml", "name: [unclosed")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidateFile(t *testing.T) {
	eng := engine.New(zerolog.Nop())

	var out bytes.Buffer
	if !validateFile(&out, eng, writeFile(t, "ok.yaml", yamlSpec)) {
		t.Fatalf("expected valid, output: %s", out.String())
	}
	if !strings.Contains(out.String(), ": ok") {
		t.Fatalf("output = %q", out.String())
	}

	out.Reset()
	if validateFile(&out, eng, writeFile(t, "bad.json", badSpec)) {
		t.Fatal("expected invalid regex to fail")
	}
	if !strings.Contains(out.String(), "issue(s)") {
		t.Fatalf("output = %q", out.String())
	}
}
