/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/rules"
)

// ValidationError aggregates every problem found in a spec.
type ValidationError struct {
	ListID string
	Issues []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	if e.ListID == "" {
		return "invalid list: " + strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("invalid list %s: %s", e.ListID, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Issues }

// ValidateSpec returns every problem with a spec, or nil.
func (e *Engine) ValidateSpec(spec *models.ListSpec) []error {
	if spec == nil {
		return []error{errors.New("spec is required")}
	}
	_, issues := e.compile(spec)
	return issues
}

// Validate is ValidateSpec folded into a single error.
func (e *Engine) Validate(spec *models.ListSpec) error {
	issues := e.ValidateSpec(spec)
	if len(issues) == 0 {
		return nil
	}
	id := ""
	if spec != nil {
		id = spec.ID
	}
	return &ValidationError{ListID: id, Issues: issues}
}

func (e *Engine) compile(spec *models.ListSpec) ([]*rules.CompiledSet, []error) {
	var issues []error

	if err := e.validate.Struct(spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				issues = append(issues, fmt.Errorf("%s: failed %q check", fe.Namespace(), fe.Tag()))
			}
		} else {
			issues = append(issues, err)
		}
	}

	if spec.Kind == models.ListKindCollection && len(spec.Owners) > 1 {
		issues = append(issues, fmt.Errorf("a collection has exactly one owner, got %d", len(spec.Owners)))
	}
	for _, name := range spec.MediaTypes {
		if _, ok := catalog.ParseMediaType(name); !ok {
			issues = append(issues, fmt.Errorf("unknown media type %q", name))
		}
	}
	if err := rules.ValidateOrder(spec.Order); err != nil {
		issues = append(issues, err)
	}
	for _, key := range spec.Order {
		if strings.EqualFold(key.Field, rules.OrderSimilarity) && spec.SimilarityReferences() == "" {
			issues = append(issues, errors.New("similarity ordering needs a SimilarTo expression"))
		}
	}

	for si, set := range spec.ExpressionSets {
		for ei, expr := range set.Expressions {
			if err := e.CheckOperator(expr.Field, expr.Operator); err != nil {
				issues = append(issues, fmt.Errorf("set %d expression %d: %w", si+1, ei+1, err))
				continue
			}
			if _, err := rules.Compile(expr, e.regexes); err != nil {
				issues = append(issues, fmt.Errorf("set %d expression %d: %w", si+1, ei+1, err))
			}
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}

	// Patterns come from the warm regex cache.
	out, err := rules.CompileSets(spec.ExpressionSets, e.regexes)
	if err != nil {
		return nil, []error{err}
	}
	return out, nil
}
