/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

const framerateTolerance = 0.01

// Evaluate applies one compiled expression to an item. Missing values and
// unexpected failures evaluate to false.
func Evaluate(c *Compiled, item *catalog.Item, env *Env) (matched bool) {
	if c == nil || item == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			matched = false
			telemetry.EvaluationErrors.WithLabelValues(c.Field.Name).Inc()
			env.reportError(c, item, r)
		}
	}()

	f := c.Field
	switch f.Kind {
	case KindString, KindSimpleEnum:
		return c.matchText(f.text(item))
	case KindStringList:
		return c.matchList(listValues(c, item, env))
	case KindNumeric, KindResolution, KindFramerate:
		v, ok := f.number(item)
		return ok && c.matchNumber(v)
	case KindDate:
		t, ok := f.date(item)
		return ok && c.matchDate(t, env.Now)
	case KindBoolean:
		return c.matchFlag(f.flag(item))
	case KindUserScoped:
		return c.matchUser(item, env)
	case KindSimilarity:
		return similarityScore(c.refs, item, env) >= c.minScore
	}
	return false
}

func (c *Compiled) matchText(value string) bool {
	v := c.fold(value)
	switch c.Expr.Operator {
	case models.OpEquals:
		return v == c.text
	case models.OpNotEquals:
		return v != c.text
	case models.OpContains:
		return strings.Contains(v, c.text)
	case models.OpNotContains:
		return !strings.Contains(v, c.text)
	case models.OpStartsWith:
		return strings.HasPrefix(v, c.text)
	case models.OpEndsWith:
		return strings.HasSuffix(v, c.text)
	case models.OpIsIn:
		return slices.Contains(c.values, v)
	case models.OpIsNotIn:
		return !slices.Contains(c.values, v)
	case models.OpMatchRegex:
		return matchRegex(c.regex, value)
	}
	return false
}

// matchList treats positive operators as "any element" and negated
// operators as "no element".
func (c *Compiled) matchList(values []string) bool {
	switch c.Expr.Operator {
	case models.OpNotEquals:
		return !c.anyText(values, models.OpEquals)
	case models.OpNotContains:
		return !c.anyText(values, models.OpContains)
	case models.OpIsNotIn:
		return !c.anyText(values, models.OpIsIn)
	default:
		return c.anyText(values, c.Expr.Operator)
	}
}

func (c *Compiled) anyText(values []string, op models.Operator) bool {
	probe := *c
	probe.Expr.Operator = op
	for _, v := range values {
		if probe.matchText(v) {
			return true
		}
	}
	return false
}

func listValues(c *Compiled, item *catalog.Item, env *Env) []string {
	mods := c.Expr.Modifiers
	if mods.IncludeCollectionOnly {
		var out []string
		for _, box := range env.containersOf(item.ID) {
			if strings.EqualFold(c.Field.Name, FieldCollections) {
				out = append(out, box.Name)
				continue
			}
			out = append(out, c.Field.list(box)...)
		}
		return out
	}

	values := c.Field.list(item)
	if mods.IncludeEpisodesWithinSeries && (item.Type == catalog.TypeEpisode || item.Type == catalog.TypeSeason) {
		if series := env.seriesOf(item); series != nil {
			values = append(slices.Clone(values), c.Field.list(series)...)
		}
	}
	return values
}

func (c *Compiled) matchNumber(v float64) bool {
	target := c.num[0]
	equal := v == target
	if c.Field.Kind == KindFramerate {
		equal = math.Abs(v-target) <= framerateTolerance
	}
	switch c.Expr.Operator {
	case models.OpEquals:
		return equal
	case models.OpNotEquals:
		return !equal
	case models.OpGreaterThan:
		return v > target
	case models.OpGreaterOrEqual:
		return v >= target
	case models.OpLessThan:
		return v < target
	case models.OpLessOrEqual:
		return v <= target
	case models.OpBetween:
		return v >= c.num[0] && v <= c.num[1]
	}
	return false
}

// matchDate compares at second precision. A date-only Equals value matches
// the whole day.
func (c *Compiled) matchDate(t, now time.Time) bool {
	v := t.UTC().Truncate(time.Second)
	target := c.when[0]
	switch c.Expr.Operator {
	case models.OpEquals, models.OpNotEquals:
		var equal bool
		if c.dateOnly {
			y1, m1, d1 := v.Date()
			y2, m2, d2 := target.Date()
			equal = y1 == y2 && m1 == m2 && d1 == d2
		} else {
			equal = v.Equal(target)
		}
		return equal == (c.Expr.Operator == models.OpEquals)
	case models.OpGreaterThan, models.OpAfter:
		return v.After(target)
	case models.OpGreaterOrEqual:
		return !v.Before(target)
	case models.OpLessThan, models.OpBefore:
		return v.Before(target)
	case models.OpLessOrEqual:
		return !v.After(target)
	case models.OpBetween:
		return !v.Before(c.when[0]) && !v.After(c.when[1])
	case models.OpNewerThan:
		return v.After(relativeCutoff(now, c.relN, c.relUnit))
	case models.OpOlderThan:
		return v.Before(relativeCutoff(now, c.relN, c.relUnit))
	}
	return false
}

func (c *Compiled) matchFlag(v bool) bool {
	switch c.Expr.Operator {
	case models.OpEquals:
		return v == c.flag
	case models.OpNotEquals:
		return v != c.flag
	}
	return false
}

func (c *Compiled) evalUser(env *Env) string {
	if c.Expr.UserID != "" {
		return c.Expr.UserID
	}
	return env.EvalUserID
}

func (c *Compiled) matchUser(item *catalog.Item, env *Env) bool {
	userID := c.evalUser(env)
	if c.Field.Name == FieldNextUnwatched {
		return c.matchFlag(isNextUnwatched(item, userID, env))
	}

	value, ok := c.Field.user(env.userData(item, userID))
	if !ok {
		return false
	}
	switch c.Field.Scalar {
	case KindBoolean:
		return c.matchFlag(value.(bool))
	case KindNumeric:
		return c.matchNumber(value.(float64))
	case KindDate:
		return c.matchDate(value.(time.Time), env.Now)
	}
	return false
}

// isNextUnwatched reports whether item is the first unplayed episode of its
// series for userID.
func isNextUnwatched(item *catalog.Item, userID string, env *Env) bool {
	if item.Type != catalog.TypeEpisode || item.SeriesID == "" {
		return false
	}
	if env.userData(item, userID).Played {
		return false
	}
	for _, ep := range env.seriesEpisodes(item.SeriesID) {
		if ep.ID == item.ID {
			return true
		}
		if !env.userData(ep, userID).Played {
			return false
		}
	}
	return false
}
