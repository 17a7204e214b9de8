/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"sort"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

// CompiledSet is an expression set ready for evaluation. Expressions are
// held cheapest first; the order never changes the result.
type CompiledSet struct {
	Mode  models.MatchMode
	Exprs []*Compiled
}

// CompileSet compiles every expression of a set.
func CompileSet(set models.ExpressionSet, cache *RegexCache) (*CompiledSet, error) {
	out := &CompiledSet{Mode: set.Mode, Exprs: make([]*Compiled, 0, len(set.Expressions))}
	if out.Mode == "" {
		out.Mode = models.MatchAll
	}
	for i, expr := range set.Expressions {
		c, err := Compile(expr, cache)
		if err != nil {
			return nil, fmt.Errorf("expression %d: %w", i+1, err)
		}
		out.Exprs = append(out.Exprs, c)
	}
	sort.SliceStable(out.Exprs, func(i, j int) bool { return out.Exprs[i].cost < out.Exprs[j].cost })
	return out, nil
}

// CompileSets compiles all sets of a spec.
func CompileSets(sets []models.ExpressionSet, cache *RegexCache) ([]*CompiledSet, error) {
	out := make([]*CompiledSet, 0, len(sets))
	for i, set := range sets {
		cs, err := CompileSet(set, cache)
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", i+1, err)
		}
		out = append(out, cs)
	}
	return out, nil
}

// Match evaluates the set against one item, short-circuiting by mode.
func (s *CompiledSet) Match(item *catalog.Item, env *Env) bool {
	if len(s.Exprs) == 0 {
		return false
	}
	if s.Mode == models.MatchAny {
		for _, c := range s.Exprs {
			if Evaluate(c, item, env) {
				return true
			}
		}
		return false
	}
	for _, c := range s.Exprs {
		if !Evaluate(c, item, env) {
			return false
		}
	}
	return true
}

// MatchAny reports whether any set matches, stopping at the first match.
func MatchAny(sets []*CompiledSet, item *catalog.Item, env *Env) bool {
	for _, s := range sets {
		if s.Match(item, env) {
			return true
		}
	}
	return false
}
