/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

func TestRegexTooLongRejectedBeforeCompile(t *testing.T) {
	cache := NewRegexCache()
	_, err := Compile(models.Expression{
		Field:    "Name",
		Operator: models.OpMatchRegex,
		Value:    strings.Repeat("a", MaxRegexLength+1),
	}, cache)
	if !errors.Is(err, ErrRegexTooLong) {
		t.Fatalf("expected ErrRegexTooLong, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected nothing compiled, cache holds %d", cache.Len())
	}
}

func TestRegexAtLimitAccepted(t *testing.T) {
	cache := NewRegexCache()
	if _, err := cache.Compile(strings.Repeat("a", MaxRegexLength), false); err != nil {
		t.Fatalf("expected pattern at limit to compile: %v", err)
	}
}

func TestRegexInvalidPattern(t *testing.T) {
	_, err := NewRegexCache().Compile("(unclosed", false)
	if !errors.Is(err, ErrRegexInvalid) {
		t.Fatalf("expected ErrRegexInvalid, got %v", err)
	}
}

func TestCatastrophicRegexDegradesToNoMatch(t *testing.T) {
	c, err := Compile(models.Expression{
		Field:    "Name",
		Operator: models.OpMatchRegex,
		Value:    `^(a+)+$`,
	}, NewRegexCache())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	item := &catalog.Item{ID: "x", Name: strings.Repeat("a", 64) + "!"}
	env := NewEnv([]*catalog.Item{item}, "u1", "u1")

	start := time.Now()
	matched := Evaluate(c, item, env)
	elapsed := time.Since(start)

	if matched {
		t.Fatal("expected timed out match to evaluate false")
	}
	if elapsed > 3*RegexBudget {
		t.Fatalf("match overran the %s budget, took %s", RegexBudget, elapsed)
	}
}

func TestRegexCaseModes(t *testing.T) {
	item := &catalog.Item{ID: "x", Name: "The Matrix"}
	env := NewEnv([]*catalog.Item{item}, "", "")
	cache := NewRegexCache()

	insensitive, err := Compile(models.Expression{Field: "Name", Operator: models.OpMatchRegex, Value: "^the"}, cache)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sensitive, err := Compile(models.Expression{
		Field: "Name", Operator: models.OpMatchRegex, Value: "^the",
		Modifiers: models.Modifiers{CaseSensitive: true},
	}, cache)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if !Evaluate(insensitive, item, env) {
		t.Fatal("expected case-insensitive match")
	}
	if Evaluate(sensitive, item, env) {
		t.Fatal("expected case-sensitive mismatch")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected separate cache entries per case mode, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatal("expected cache cleared")
	}
}
