/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/friendsincode/smartlists/internal/models"
)

// rawSpec accepts both the canonical multi-owner layout and the older
// single-owner one (userId/playlistId) and its userPlaylists variant.
type rawSpec struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Enabled            *bool                  `json:"enabled"`
	Kind               models.ListKind        `json:"kind"`
	Public             bool                   `json:"public"`
	ExpressionSets     []models.ExpressionSet `json:"expressionSets"`
	Order              []models.SortKey       `json:"order"`
	MediaTypes         []string               `json:"mediaTypes"`
	Owners             []string               `json:"owners"`
	Artifacts          models.ArtifactMapping `json:"artifacts"`
	MaxItems           int                    `json:"maxItems"`
	MaxPlayTimeMinutes int                    `json:"maxPlayTimeMinutes"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`

	UserID        string `json:"userId"`
	PlaylistID    string `json:"playlistId"`
	UserPlaylists []struct {
		UserID     string `json:"userId"`
		PlaylistID string `json:"playlistId"`
	} `json:"userPlaylists"`
}

// Normalize decodes a stored or legacy definition into the canonical form.
// It is pure: the same input always yields the same spec.
func Normalize(raw []byte) (*models.ListSpec, error) {
	var in rawSpec
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode list definition: %w", err)
	}

	spec := &models.ListSpec{
		ID:                 strings.TrimSpace(in.ID),
		Name:               in.Name,
		Enabled:            in.Enabled == nil || *in.Enabled,
		Kind:               in.Kind,
		Public:             in.Public,
		ExpressionSets:     in.ExpressionSets,
		Order:              in.Order,
		MaxItems:           in.MaxItems,
		MaxPlayTimeMinutes: in.MaxPlayTimeMinutes,
		CreatedAt:          in.CreatedAt,
		UpdatedAt:          in.UpdatedAt,
		Artifacts:          models.ArtifactMapping{},
	}
	if spec.Kind == "" {
		spec.Kind = models.ListKindPlaylist
	}
	for i := range spec.ExpressionSets {
		if spec.ExpressionSets[i].Mode == "" {
			spec.ExpressionSets[i].Mode = models.MatchAll
		}
	}

	owners := slices.Clone(in.Owners)
	mapped := make([]string, 0, len(in.Artifacts))
	for user := range in.Artifacts {
		mapped = append(mapped, user)
	}
	slices.Sort(mapped)
	for _, user := range mapped {
		owners = append(owners, user)
		if id := in.Artifacts[user]; id != "" {
			spec.Artifacts[user] = id
		}
	}
	for _, up := range in.UserPlaylists {
		owners = append(owners, up.UserID)
		if up.UserID != "" && up.PlaylistID != "" {
			spec.Artifacts[up.UserID] = up.PlaylistID
		}
	}
	if in.UserID != "" {
		owners = append(owners, in.UserID)
		if in.PlaylistID != "" {
			if _, ok := spec.Artifacts[in.UserID]; !ok {
				spec.Artifacts[in.UserID] = in.PlaylistID
			}
		}
	}
	spec.Owners = dedupe(owners)
	spec.MediaTypes = dedupe(in.MediaTypes)

	if spec.ID == "" {
		return nil, fmt.Errorf("list definition has no id")
	}
	return spec, nil
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
