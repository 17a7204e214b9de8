/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

func ids(items []*catalog.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestApplyOrder(t *testing.T) {
	items := []*catalog.Item{
		{ID: "a", Name: "Charlie", ProductionYear: 2001, CommunityRating: ptr(7.0)},
		{ID: "b", Name: "alpha", ProductionYear: 1999},
		{ID: "c", Name: "Bravo", ProductionYear: 2001, CommunityRating: ptr(9.0)},
		{ID: "d", Name: "Delta", ProductionYear: 2010, CommunityRating: ptr(7.0)},
	}

	tests := []struct {
		name string
		keys []models.SortKey
		want []string
	}{
		{"no keys keeps catalog order", nil, []string{"a", "b", "c", "d"}},
		{"no order keeps catalog order", []models.SortKey{{Field: OrderNone}}, []string{"a", "b", "c", "d"}},
		{"name ascending ignores case", []models.SortKey{{Field: OrderName}}, []string{"b", "c", "a", "d"}},
		{"year descending ties stable", []models.SortKey{{Field: OrderProductionYear, Direction: models.Descending}}, []string{"d", "a", "c", "b"}},
		{
			"multi key",
			[]models.SortKey{{Field: OrderProductionYear}, {Field: OrderCommunityRating, Direction: models.Descending}},
			[]string{"b", "c", "a", "d"},
		},
		{
			"missing values sort last in both directions",
			[]models.SortKey{{Field: OrderCommunityRating, Direction: models.Descending}},
			[]string{"c", "a", "d", "b"},
		},
		{
			"missing values last ascending",
			[]models.SortKey{{Field: OrderCommunityRating}},
			[]string{"a", "d", "c", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnv(items, "u1", "u1")
			got := ids(ApplyOrder(items, tt.keys, env, nil))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyOrderDoesNotMutateInput(t *testing.T) {
	items := []*catalog.Item{{ID: "b", Name: "B"}, {ID: "a", Name: "A"}}
	ApplyOrder(items, []models.SortKey{{Field: OrderName}}, NewEnv(items, "", ""), nil)
	if items[0].ID != "b" {
		t.Fatal("input slice was reordered")
	}
}

func TestRandomOrderIsPermutation(t *testing.T) {
	items := make([]*catalog.Item, 50)
	for i := range items {
		items[i] = &catalog.Item{ID: string(rune('A' + i))}
	}
	env := NewEnv(items, "", "")
	env.Rand = rand.New(rand.NewSource(7))

	first := ids(ApplyOrder(items, []models.SortKey{{Field: OrderRandom}}, env, nil))
	second := ids(ApplyOrder(items, []models.SortKey{{Field: OrderRandom}}, env, nil))

	if slices.Equal(first, ids(items)) {
		t.Fatal("expected random order to differ from catalog order")
	}
	if slices.Equal(first, second) {
		t.Fatal("expected a fresh permutation per evaluation")
	}
	sorted := slices.Clone(first)
	slices.Sort(sorted)
	want := ids(items)
	slices.Sort(want)
	if !slices.Equal(sorted, want) {
		t.Fatal("random order lost or duplicated items")
	}
}

func TestPlayCountOrderUsesOwner(t *testing.T) {
	items := []*catalog.Item{
		{ID: "x", UserData: map[string]catalog.UserData{"owner": {PlayCount: 1}, "viewer": {PlayCount: 9}}},
		{ID: "y", UserData: map[string]catalog.UserData{"owner": {PlayCount: 5}, "viewer": {PlayCount: 0}}},
	}
	env := NewEnv(items, "viewer", "owner")
	got := ids(ApplyOrder(items, []models.SortKey{{Field: OrderPlayCount, Direction: models.Descending}}, env, nil))
	if !slices.Equal(got, []string{"y", "x"}) {
		t.Fatalf("expected owner play counts to drive order, got %v", got)
	}
}

func TestSimilarityOrderDefaultsDescending(t *testing.T) {
	ref := &catalog.Item{ID: "r", Name: "Reference", Genres: []string{"Crime", "Drama"}}
	near := &catalog.Item{ID: "c", Name: "Close", Genres: []string{"Crime", "Drama"}}
	far := &catalog.Item{ID: "f", Name: "Far", Genres: []string{"Comedy"}}
	items := []*catalog.Item{far, near}
	env := NewEnv([]*catalog.Item{ref, far, near}, "", "")

	got := ids(ApplyOrder(items, []models.SortKey{{Field: OrderSimilarity}}, env, ReferenceNames("Reference")))
	if !slices.Equal(got, []string{"c", "f"}) {
		t.Fatalf("expected most similar first, got %v", got)
	}
}

func TestValidateOrder(t *testing.T) {
	if err := ValidateOrder([]models.SortKey{{Field: "name"}, {Field: "Random"}, {Field: "NoOrder"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateOrder([]models.SortKey{{Field: "Shoe"}}); !errors.Is(err, ErrUnknownSortKey) {
		t.Fatalf("expected ErrUnknownSortKey, got %v", err)
	}
}
