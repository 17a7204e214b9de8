/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/rules"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// progressEvery is how many candidates pass between progress callbacks.
const progressEvery = 250

// Engine filters and orders catalog items for list specs. It owns the
// compiled field/operator validation cache and the regex cache.
type Engine struct {
	logger   zerolog.Logger
	validate *validator.Validate
	regexes  *rules.RegexCache

	mu      sync.RWMutex
	checked map[string]error
}

// New creates an engine.
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		logger:   logger.With().Str("component", "engine").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		regexes:  rules.NewRegexCache(),
		checked:  make(map[string]error),
	}
}

// CheckOperator validates a field/operator pair through the cache.
func (e *Engine) CheckOperator(field string, op models.Operator) error {
	key := strings.ToLower(field) + "\x00" + string(op)

	e.mu.RLock()
	err, ok := e.checked[key]
	e.mu.RUnlock()
	if ok {
		return err
	}

	err = rules.CheckOperator(field, op)
	e.mu.Lock()
	e.checked[key] = err
	e.mu.Unlock()
	return err
}

// CachedChecks reports the number of cached field/operator validations.
func (e *Engine) CachedChecks() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.checked)
}

// Invalidate drops every cached validation and compiled pattern. Called on
// any spec create or edit.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.checked = make(map[string]error)
	e.mu.Unlock()
	e.regexes.Clear()
}

// FilterRequest describes one evaluation.
type FilterRequest struct {
	// Items is the fetched catalog, possibly including widened types.
	Items       []*catalog.Item
	Spec        *models.ListSpec
	EvalUserID  string
	OwnerUserID string
	// Progress receives (processed, total) while candidates are scanned.
	Progress func(processed, total int)
	// Now and Rand default to the wall clock and a time seeded source.
	Now  time.Time
	Rand *rand.Rand
}

// FilterResult is the ordered, limited output of Filter.
type FilterResult struct {
	Items []*catalog.Item
	IDs   []string
	// Matched counts items that satisfied the rules before limits applied.
	Matched int
}

// Filter evaluates a spec against a catalog snapshot and returns ordered
// item ids. Only items whose type is one of the spec's media types are
// returned; widened types are used for lookups only.
func (e *Engine) Filter(ctx context.Context, req FilterRequest) (FilterResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine", "engine.filter")
	defer span.End()

	spec := req.Spec
	if spec == nil {
		return FilterResult{}, &ValidationError{Issues: []error{fmt.Errorf("spec is required")}}
	}
	sets, issues := e.compile(spec)
	if len(issues) > 0 {
		err := &ValidationError{ListID: spec.ID, Issues: issues}
		telemetry.RecordError(span, err)
		return FilterResult{}, err
	}

	env := rules.NewEnv(req.Items, req.EvalUserID, req.OwnerUserID)
	if !req.Now.IsZero() {
		env.Now = req.Now
	}
	if req.Rand != nil {
		env.Rand = req.Rand
	}
	env.OnError = func(c *rules.Compiled, item *catalog.Item, cause any) {
		e.logger.Debug().
			Str("list_id", spec.ID).
			Str("field", c.Field.Name).
			Str("operator", string(c.Expr.Operator)).
			Str("item_id", item.ID).
			Interface("cause", cause).
			Msg("expression evaluation failed")
	}

	allowed := make(map[catalog.MediaType]struct{}, len(spec.MediaTypes))
	for _, name := range spec.MediaTypes {
		if t, ok := catalog.ParseMediaType(name); ok {
			allowed[t] = struct{}{}
		}
	}

	total := len(req.Items)
	var matched []*catalog.Item
	for i, item := range req.Items {
		if req.Progress != nil && i%progressEvery == 0 {
			req.Progress(i, total)
		}
		if _, ok := allowed[item.Type]; !ok {
			continue
		}
		if rules.MatchAny(sets, item, env) {
			matched = append(matched, item)
		}
	}
	if req.Progress != nil {
		req.Progress(total, total)
	}

	ordered := rules.ApplyOrder(matched, spec.Order, env, rules.ReferenceNames(spec.SimilarityReferences()))
	limited := applyLimits(ordered, spec.MaxItems, spec.MaxPlayTimeMinutes)

	ids := make([]string, len(limited))
	for i, item := range limited {
		ids[i] = item.ID
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"list_id":    spec.ID,
		"candidates": total,
		"matched":    len(matched),
		"returned":   len(ids),
	})
	return FilterResult{Items: limited, IDs: ids, Matched: len(matched)}, nil
}

// applyLimits truncates by item count, then by cumulative runtime. Zero
// disables a limit.
func applyLimits(items []*catalog.Item, maxItems, maxMinutes int) []*catalog.Item {
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	if maxMinutes <= 0 {
		return items
	}
	budget := float64(maxMinutes)
	used := 0.0
	for i, item := range items {
		used += item.RuntimeMinutes()
		if used > budget {
			return items[:i]
		}
	}
	return items
}

// RequiredTypes returns the media types the catalog fetch must include and
// whether they were widened beyond the spec's own types.
func (e *Engine) RequiredTypes(spec *models.ListSpec) ([]catalog.MediaType, bool) {
	set := make(map[catalog.MediaType]struct{})
	for _, name := range spec.MediaTypes {
		if t, ok := catalog.ParseMediaType(name); ok {
			set[t] = struct{}{}
		}
	}
	base := len(set)

	// Similarity references may name an item of any type.
	if spec.SimilarityReferences() != "" {
		for _, t := range catalog.KnownTypes() {
			set[t] = struct{}{}
		}
	}

	for _, es := range spec.ExpressionSets {
		for _, expr := range es.Expressions {
			kind, err := rules.Classify(expr.Field)
			if err != nil || kind != rules.KindStringList {
				continue
			}
			if expr.Modifiers.IncludeEpisodesWithinSeries {
				set[catalog.TypeSeries] = struct{}{}
			}
			if expr.Modifiers.IncludeCollectionOnly {
				set[catalog.TypeBoxSet] = struct{}{}
			}
		}
	}

	types := make([]catalog.MediaType, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	slices.Sort(types)
	return types, len(set) > base
}
