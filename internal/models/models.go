/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"slices"
	"time"
)

// ListKind distinguishes per-user playlists from server-wide collections.
type ListKind string

const (
	ListKindPlaylist   ListKind = "Playlist"
	ListKindCollection ListKind = "Collection"
)

// MatchMode controls how expressions inside one set combine.
type MatchMode string

const (
	MatchAll MatchMode = "And"
	MatchAny MatchMode = "Or"
)

// Operator names a comparison applied by an expression.
type Operator string

const (
	OpEquals         Operator = "Equals"
	OpNotEquals      Operator = "NotEquals"
	OpContains       Operator = "Contains"
	OpNotContains    Operator = "NotContains"
	OpStartsWith     Operator = "StartsWith"
	OpEndsWith       Operator = "EndsWith"
	OpIsIn           Operator = "IsIn"
	OpIsNotIn        Operator = "IsNotIn"
	OpMatchRegex     Operator = "MatchRegex"
	OpGreaterThan    Operator = "GreaterThan"
	OpGreaterOrEqual Operator = "GreaterOrEqual"
	OpLessThan       Operator = "LessThan"
	OpLessOrEqual    Operator = "LessOrEqual"
	OpBetween        Operator = "Between"
	OpAfter          Operator = "After"
	OpBefore         Operator = "Before"
	OpNewerThan      Operator = "NewerThan"
	OpOlderThan      Operator = "OlderThan"
	OpSimilarTo      Operator = "SimilarTo"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "Asc"
	Descending Direction = "Desc"
)

// Modifiers tune how a single expression is matched.
type Modifiers struct {
	// IncludeCollectionOnly matches against the collections containing the
	// item instead of the item's own values.
	IncludeCollectionOnly bool `json:"includeCollectionOnly,omitempty"`
	// IncludeEpisodesWithinSeries also searches the series of an episode.
	IncludeEpisodesWithinSeries bool    `json:"includeEpisodesWithinSeries,omitempty"`
	CaseSensitive               bool    `json:"caseSensitive,omitempty"`
	MinSimilarity               float64 `json:"minSimilarity,omitempty" validate:"gte=0,lte=1"`
}

// Expression is one (field, operator, value) rule clause.
type Expression struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    string   `json:"value"`
	// UserID overrides the evaluation user for user-scoped fields.
	UserID    string    `json:"userId,omitempty"`
	Modifiers Modifiers `json:"modifiers,omitempty"`
}

// ExpressionSet groups expressions combined by Mode.
type ExpressionSet struct {
	Mode        MatchMode    `json:"mode" validate:"omitempty,oneof=And Or"`
	Expressions []Expression `json:"expressions" validate:"required,min=1,dive"`
}

// SortKey is one ordering step.
type SortKey struct {
	Field     string    `json:"field" validate:"required"`
	Direction Direction `json:"direction,omitempty" validate:"omitempty,oneof=Asc Desc"`
}

// ArtifactMapping maps an owning user id to the external artifact id
// created for that user.
type ArtifactMapping map[string]string

// ListSpec is a saved rule definition for one derived list.
type ListSpec struct {
	ID                 string          `json:"id" validate:"required"`
	Name               string          `json:"name" validate:"required,max=255"`
	Enabled            bool            `json:"enabled"`
	Kind               ListKind        `json:"kind" validate:"required,oneof=Playlist Collection"`
	Public             bool            `json:"public"`
	ExpressionSets     []ExpressionSet `json:"expressionSets" validate:"required,min=1,dive"`
	Order              []SortKey       `json:"order,omitempty" validate:"dive"`
	MediaTypes         []string        `json:"mediaTypes" validate:"required,min=1,dive,required"`
	Owners             []string        `json:"owners" validate:"required,min=1,dive,required"`
	Artifacts          ArtifactMapping `json:"artifacts,omitempty"`
	MaxItems           int             `json:"maxItems,omitempty" validate:"gte=0"`
	MaxPlayTimeMinutes int             `json:"maxPlayTimeMinutes,omitempty" validate:"gte=0"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *ListSpec) Clone() *ListSpec {
	if s == nil {
		return nil
	}
	out := *s
	out.ExpressionSets = make([]ExpressionSet, len(s.ExpressionSets))
	for i, set := range s.ExpressionSets {
		out.ExpressionSets[i] = ExpressionSet{Mode: set.Mode, Expressions: slices.Clone(set.Expressions)}
	}
	out.Order = slices.Clone(s.Order)
	out.MediaTypes = slices.Clone(s.MediaTypes)
	out.Owners = slices.Clone(s.Owners)
	if s.Artifacts != nil {
		out.Artifacts = make(ArtifactMapping, len(s.Artifacts))
		for user, id := range s.Artifacts {
			out.Artifacts[user] = id
		}
	}
	return &out
}

// HasOwner reports whether userID owns the list.
func (s *ListSpec) HasOwner(userID string) bool {
	return slices.Contains(s.Owners, userID)
}

// ArtifactFor returns the recorded artifact id for an owner.
func (s *ListSpec) ArtifactFor(userID string) (string, bool) {
	id, ok := s.Artifacts[userID]
	return id, ok && id != ""
}

// SimilarityReferences returns the reference names of the first SimilarTo
// expression, used by similarity ordering.
func (s *ListSpec) SimilarityReferences() string {
	for _, set := range s.ExpressionSets {
		for _, expr := range set.Expressions {
			if expr.Operator == OpSimilarTo {
				return expr.Value
			}
		}
	}
	return ""
}
