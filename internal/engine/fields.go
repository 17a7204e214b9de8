/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/rules"
)

// FieldInfo describes one filterable field for editors.
type FieldInfo struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	UserScoped bool              `json:"userScoped,omitempty"`
	Operators  []models.Operator `json:"operators"`
}

// FieldCatalog lists fields, sort keys and media types.
type FieldCatalog struct {
	Fields     []FieldInfo `json:"fields"`
	SortKeys   []string    `json:"sortKeys"`
	MediaTypes []string    `json:"mediaTypes"`
}

// FieldCatalog returns what a list editor may offer.
func (e *Engine) FieldCatalog() FieldCatalog {
	fields := rules.Fields()
	out := FieldCatalog{
		Fields:   make([]FieldInfo, 0, len(fields)),
		SortKeys: rules.SortKeyNames(),
	}
	for _, f := range fields {
		ops, _ := rules.OperatorsForField(f.Name)
		out.Fields = append(out.Fields, FieldInfo{
			Name:       f.Name,
			Kind:       f.CompareKind().String(),
			UserScoped: f.Kind == rules.KindUserScoped,
			Operators:  ops,
		})
	}
	for _, t := range catalog.KnownTypes() {
		out.MediaTypes = append(out.MediaTypes, string(t))
	}
	return out
}
