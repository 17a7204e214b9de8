/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/friendsincode/smartlists/internal/models"
)

// ErrInvalidValue reports a value that cannot be parsed for its field kind.
var ErrInvalidValue = errors.New("invalid value")

// DefaultMinSimilarity is the similarity threshold when none is configured.
const DefaultMinSimilarity = 0.5

// Relative date units accepted by NewerThan and OlderThan.
const (
	unitDays   = "days"
	unitWeeks  = "weeks"
	unitMonths = "months"
	unitYears  = "years"
)

// Compiled is an expression with its value parsed once.
type Compiled struct {
	Expr  models.Expression
	Field Field
	cost  int

	text   string
	values []string
	num    [2]float64
	when   [2]time.Time
	// dateOnly marks an Equals value given without a time of day.
	dateOnly bool
	relN     int
	relUnit  string
	flag     bool
	regex    *regexp2.Regexp
	refs     []string
	minScore float64
}

// Cost orders expressions cheapest first inside a set.
func (c *Compiled) Cost() int { return c.cost }

func costOf(f Field, op models.Operator) int {
	switch {
	case f.Kind == KindSimilarity:
		return 4
	case op == models.OpMatchRegex, f.Name == FieldNextUnwatched:
		return 3
	}
	switch f.CompareKind() {
	case KindBoolean, KindSimpleEnum:
		return 0
	case KindNumeric, KindDate, KindResolution, KindFramerate:
		return 1
	default:
		return 2
	}
}

// Compile checks an expression and parses its value. Regex patterns go
// through cache, so compile-time checks also warm evaluation.
func Compile(expr models.Expression, cache *RegexCache) (*Compiled, error) {
	if err := CheckOperator(expr.Field, expr.Operator); err != nil {
		return nil, err
	}
	f, _ := Lookup(expr.Field)
	c := &Compiled{Expr: expr, Field: f, cost: costOf(f, expr.Operator)}

	var err error
	switch f.CompareKind() {
	case KindString, KindSimpleEnum, KindStringList:
		err = c.compileText(cache)
	case KindNumeric, KindFramerate:
		err = c.compileNumber(strconv.ParseFloat)
	case KindResolution:
		err = c.compileNumber(func(s string, _ int) (float64, error) { return parseResolution(s) })
	case KindDate:
		err = c.compileDate()
	case KindBoolean:
		c.flag, err = strconv.ParseBool(strings.TrimSpace(expr.Value))
	case KindSimilarity:
		err = c.compileSimilarity()
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s %q: %w", f.Name, expr.Operator, expr.Value, err)
	}
	return c, nil
}

func (c *Compiled) fold(s string) string {
	if c.Expr.Modifiers.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func (c *Compiled) compileText(cache *RegexCache) error {
	switch c.Expr.Operator {
	case models.OpMatchRegex:
		if cache == nil {
			cache = NewRegexCache()
		}
		re, err := cache.Compile(c.Expr.Value, c.Expr.Modifiers.CaseSensitive)
		if err != nil {
			return err
		}
		c.regex = re
	case models.OpIsIn, models.OpIsNotIn:
		for _, v := range splitValues(c.Expr.Value) {
			c.values = append(c.values, c.fold(v))
		}
		if len(c.values) == 0 {
			return fmt.Errorf("%w: empty value list", ErrInvalidValue)
		}
	default:
		c.text = c.fold(strings.TrimSpace(c.Expr.Value))
	}
	return nil
}

func (c *Compiled) compileNumber(parse func(string, int) (float64, error)) error {
	if c.Expr.Operator == models.OpBetween {
		parts := splitValues(c.Expr.Value)
		if len(parts) != 2 {
			return fmt.Errorf("%w: between needs two values separated by |", ErrInvalidValue)
		}
		for i, part := range parts {
			v, err := parse(part, 64)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			c.num[i] = v
		}
		if c.num[0] > c.num[1] {
			c.num[0], c.num[1] = c.num[1], c.num[0]
		}
		return nil
	}
	v, err := parse(strings.TrimSpace(c.Expr.Value), 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	c.num[0] = v
	return nil
}

func (c *Compiled) compileDate() error {
	switch c.Expr.Operator {
	case models.OpNewerThan, models.OpOlderThan:
		n, unit, err := parseRelative(c.Expr.Value)
		if err != nil {
			return err
		}
		c.relN, c.relUnit = n, unit
	case models.OpBetween:
		parts := splitValues(c.Expr.Value)
		if len(parts) != 2 {
			return fmt.Errorf("%w: between needs two dates separated by |", ErrInvalidValue)
		}
		for i, part := range parts {
			t, _, err := parseDate(part)
			if err != nil {
				return err
			}
			c.when[i] = t
		}
		if c.when[0].After(c.when[1]) {
			c.when[0], c.when[1] = c.when[1], c.when[0]
		}
	default:
		t, dateOnly, err := parseDate(c.Expr.Value)
		if err != nil {
			return err
		}
		c.when[0], c.dateOnly = t, dateOnly
	}
	return nil
}

func (c *Compiled) compileSimilarity() error {
	c.refs = splitValues(c.Expr.Value)
	if len(c.refs) == 0 {
		return fmt.Errorf("%w: similarity needs at least one reference title", ErrInvalidValue)
	}
	c.minScore = c.Expr.Modifiers.MinSimilarity
	if c.minScore <= 0 {
		c.minScore = DefaultMinSimilarity
	}
	return nil
}

func splitValues(raw string) []string {
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var dateLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", true},
	{"01/02/2006", true},
}

// parseDate accepts a fixed set of layouts. Values without a zone are UTC.
func parseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), l.dateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: unrecognised date %q", ErrInvalidValue, raw)
}

func parseRelative(raw string) (int, string, error) {
	num, unit, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, "", fmt.Errorf("%w: relative date must look like 30:days", ErrInvalidValue)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 0 {
		return 0, "", fmt.Errorf("%w: relative amount %q", ErrInvalidValue, num)
	}
	unit = strings.ToLower(strings.TrimSpace(unit))
	switch unit {
	case unitDays, unitWeeks, unitMonths, unitYears:
		return n, unit, nil
	}
	return 0, "", fmt.Errorf("%w: relative unit %q", ErrInvalidValue, unit)
}

func relativeCutoff(now time.Time, n int, unit string) time.Time {
	switch unit {
	case unitWeeks:
		return now.AddDate(0, 0, -7*n)
	case unitMonths:
		return now.AddDate(0, -n, 0)
	case unitYears:
		return now.AddDate(-n, 0, 0)
	default:
		return now.AddDate(0, 0, -n)
	}
}

var resolutionClasses = []int{480, 576, 720, 1080, 1440, 2160, 4320}

var resolutionAliases = map[string]int{
	"sd":  480,
	"hd":  720,
	"fhd": 1080,
	"qhd": 1440,
	"2k":  1440,
	"uhd": 2160,
	"4k":  2160,
	"8k":  4320,
}

// resolutionClass buckets a frame size into a standard height so that
// letterboxed encodes land in the class of their width.
func resolutionClass(width, height int) int {
	derived := max(height, int(math.Round(float64(width)*9/16)))
	if derived <= 0 {
		return 0
	}
	class := 0
	for _, c := range resolutionClasses {
		if derived >= c {
			class = c
		}
	}
	if class == 0 {
		return derived
	}
	return class
}

func parseResolution(raw string) (float64, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if h, ok := resolutionAliases[v]; ok {
		return float64(h), nil
	}
	v = strings.TrimSuffix(strings.TrimSuffix(v, "p"), "i")
	h, err := strconv.Atoi(v)
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("unrecognised resolution %q", raw)
	}
	return float64(h), nil
}
