/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

func ptr[T any](v T) *T { return &v }

func mustCompile(t *testing.T, field string, op models.Operator, value string, mods ...models.Modifiers) *Compiled {
	t.Helper()
	expr := models.Expression{Field: field, Operator: op, Value: value}
	if len(mods) > 0 {
		expr.Modifiers = mods[0]
	}
	c, err := Compile(expr, NewRegexCache())
	if err != nil {
		t.Fatalf("compile %s %s %q: %v", field, op, value, err)
	}
	return c
}

func TestEvaluateScalarKinds(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	item := &catalog.Item{
		ID:              "m1",
		Name:            "Blade Runner",
		Type:            catalog.TypeMovie,
		OfficialRating:  "R",
		ProductionYear:  1982,
		CommunityRating: ptr(8.1),
		Runtime:         117 * time.Minute,
		DateCreated:     time.Date(2026, 3, 1, 18, 30, 15, 0, time.UTC),
		Genres:          []string{"Science Fiction", "Thriller"},
		Width:           1920,
		Height:          800,
		Framerate:       23.976,
		HasSubtitles:    true,
	}

	tests := []struct {
		name  string
		field string
		op    models.Operator
		value string
		want  bool
	}{
		{"string equals folds case", "Name", models.OpEquals, "blade runner", true},
		{"string contains", "Name", models.OpContains, "RUNNER", true},
		{"string starts with", "Name", models.OpStartsWith, "blade", true},
		{"string ends with", "Name", models.OpEndsWith, "blade", false},
		{"string is in", "Name", models.OpIsIn, "Alien|Blade Runner", true},
		{"string is not in", "Name", models.OpIsNotIn, "Alien|Blade Runner", false},
		{"enum equals", "OfficialRating", models.OpEquals, "r", true},
		{"list equals any", "Genres", models.OpEquals, "thriller", true},
		{"list contains any", "Genres", models.OpContains, "fiction", true},
		{"list not contains", "Genres", models.OpNotContains, "comedy", true},
		{"list not equals", "Genres", models.OpNotEquals, "Thriller", false},
		{"list regex", "Genres", models.OpMatchRegex, "^sci", true},
		{"numeric greater or equal", "ProductionYear", models.OpGreaterOrEqual, "1982", true},
		{"numeric less than", "ProductionYear", models.OpLessThan, "1982", false},
		{"numeric between inclusive", "CommunityRating", models.OpBetween, "8.1|9", true},
		{"numeric between reversed bounds", "CommunityRating", models.OpBetween, "9|7", true},
		{"runtime minutes", "RuntimeMinutes", models.OpGreaterThan, "100", true},
		{"date after", "DateCreated", models.OpAfter, "2026-02-28", true},
		{"date equals same day", "DateCreated", models.OpEquals, "2026-03-01", true},
		{"date equals exact second", "DateCreated", models.OpEquals, "2026-03-01T18:30:15Z", true},
		{"date equals other second", "DateCreated", models.OpEquals, "2026-03-01 18:30:16", false},
		{"date between", "DateCreated", models.OpBetween, "02/01/2026|2026-03-31", true},
		{"date newer than", "DateCreated", models.OpNewerThan, "3:weeks", true},
		{"date older than", "DateCreated", models.OpOlderThan, "1:weeks", true},
		{"date newer than days", "DateCreated", models.OpNewerThan, "7:days", false},
		{"boolean equals", "HasSubtitles", models.OpEquals, "true", true},
		{"boolean not equals", "HasSubtitles", models.OpNotEquals, "true", false},
		{"letterboxed resolution class", "Resolution", models.OpEquals, "1080p", true},
		{"resolution alias", "Resolution", models.OpLessThan, "4K", true},
		{"framerate tolerance", "Framerate", models.OpEquals, "23.98", true},
		{"framerate greater", "Framerate", models.OpGreaterThan, "24", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustCompile(t, tt.field, tt.op, tt.value)
			env := NewEnv([]*catalog.Item{item}, "u1", "u1")
			env.Now = now
			if got := Evaluate(c, item, env); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateMissingValuesAreFalse(t *testing.T) {
	item := &catalog.Item{ID: "m1", Name: "Unrated"}
	env := NewEnv([]*catalog.Item{item}, "u1", "u1")

	tests := []struct {
		field string
		op    models.Operator
		value string
	}{
		{"CommunityRating", models.OpLessThan, "5"},
		{"CommunityRating", models.OpNotEquals, "5"},
		{"PremiereDate", models.OpBefore, "2030-01-01"},
		{"ProductionYear", models.OpLessOrEqual, "3000"},
		{"Resolution", models.OpLessThan, "4k"},
		{"LastPlayedDate", models.OpBefore, "2030-01-01"},
	}
	for _, tt := range tests {
		if Evaluate(mustCompile(t, tt.field, tt.op, tt.value), item, env) {
			t.Errorf("%s %s %s: expected false for missing value", tt.field, tt.op, tt.value)
		}
	}
}

func TestEvaluateRecoversFromPanics(t *testing.T) {
	c := mustCompile(t, "Name", models.OpEquals, "x")
	c.Field.text = func(*catalog.Item) string { panic("boom") }

	var reported any
	env := NewEnv(nil, "u1", "u1")
	env.OnError = func(_ *Compiled, _ *catalog.Item, cause any) { reported = cause }

	if Evaluate(c, &catalog.Item{ID: "m1"}, env) {
		t.Fatal("expected panic to evaluate false")
	}
	if reported != "boom" {
		t.Fatalf("expected error callback, got %v", reported)
	}
}

func TestCompileRejectsBadValues(t *testing.T) {
	tests := []models.Expression{
		{Field: "ProductionYear", Operator: models.OpEquals, Value: "nineteen"},
		{Field: "ProductionYear", Operator: models.OpBetween, Value: "1990"},
		{Field: "DateCreated", Operator: models.OpAfter, Value: "yesterday"},
		{Field: "DateCreated", Operator: models.OpNewerThan, Value: "3:fortnights"},
		{Field: "HasSubtitles", Operator: models.OpEquals, Value: "maybe"},
		{Field: "Resolution", Operator: models.OpEquals, Value: "huge"},
		{Field: "Name", Operator: models.OpIsIn, Value: " | "},
		{Field: "SimilarTo", Operator: models.OpSimilarTo, Value: ""},
	}
	for _, expr := range tests {
		if _, err := Compile(expr, nil); err == nil {
			t.Errorf("%s %s %q: expected error", expr.Field, expr.Operator, expr.Value)
		}
	}
	_, err := Compile(models.Expression{Field: "ProductionYear", Operator: models.OpEquals, Value: "x"}, nil)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestUserScopedUsesEvaluationUserOrOverride(t *testing.T) {
	item := &catalog.Item{
		ID: "m1",
		UserData: map[string]catalog.UserData{
			"alice": {IsFavorite: true, PlayCount: 4},
			"bob":   {IsFavorite: false},
		},
	}
	env := NewEnv([]*catalog.Item{item}, "bob", "alice")

	fav := mustCompile(t, "IsFavorite", models.OpEquals, "true")
	if Evaluate(fav, item, env) {
		t.Fatal("expected evaluation user (bob) data to be used")
	}

	override, err := Compile(models.Expression{
		Field: "IsFavorite", Operator: models.OpEquals, Value: "true", UserID: "alice",
	}, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Evaluate(override, item, env) {
		t.Fatal("expected per-expression user override to be honoured")
	}

	unplayed := mustCompile(t, "PlayCount", models.OpEquals, "0")
	if !Evaluate(unplayed, item, env) {
		t.Fatal("expected absent play count to read as zero for bob")
	}
}

func TestNextUnwatched(t *testing.T) {
	ep := func(id string, season, episode int, played bool) *catalog.Item {
		return &catalog.Item{
			ID: id, Type: catalog.TypeEpisode, SeriesID: "s1",
			ParentIndexNumber: ptr(season), IndexNumber: ptr(episode),
			UserData: map[string]catalog.UserData{"u1": {Played: played}},
		}
	}
	// Deliberately out of order to exercise season/episode ordering.
	items := []*catalog.Item{
		ep("e3", 2, 1, false),
		ep("e1", 1, 1, true),
		ep("e2", 1, 2, false),
		{ID: "s1", Type: catalog.TypeSeries},
	}
	env := NewEnv(items, "u1", "u1")
	c := mustCompile(t, "NextUnwatched", models.OpEquals, "true")

	got := map[string]bool{}
	for _, it := range items {
		got[it.ID] = Evaluate(c, it, env)
	}
	if !got["e2"] || got["e1"] || got["e3"] || got["s1"] {
		t.Fatalf("expected only e2 to be next unwatched, got %v", got)
	}
}

func TestCollectionOnlyModifier(t *testing.T) {
	movie := &catalog.Item{ID: "m1", Type: catalog.TypeMovie, Genres: []string{"Drama"}, Collections: []string{"Old Name"}}
	box := &catalog.Item{ID: "b1", Type: catalog.TypeBoxSet, Name: "Heist Collection", Genres: []string{"Crime"}, MemberIDs: []string{"m1"}}
	nested := &catalog.Item{ID: "b2", Type: catalog.TypeBoxSet, Name: "Mega Collection", MemberIDs: []string{"b1"}}
	env := NewEnv([]*catalog.Item{movie, box, nested}, "u1", "u1")

	only := models.Modifiers{IncludeCollectionOnly: true}
	if !Evaluate(mustCompile(t, "Collections", models.OpEquals, "heist collection", only), movie, env) {
		t.Fatal("expected containing box set name to match")
	}
	if Evaluate(mustCompile(t, "Collections", models.OpEquals, "mega collection", only), movie, env) {
		t.Fatal("expected nested containment not to be followed")
	}
	if !Evaluate(mustCompile(t, "Genres", models.OpEquals, "crime", only), movie, env) {
		t.Fatal("expected container genres to be matched")
	}
	if Evaluate(mustCompile(t, "Genres", models.OpEquals, "drama", only), movie, env) {
		t.Fatal("expected item's own genres to be ignored with collection-only")
	}
	if !Evaluate(mustCompile(t, "Collections", models.OpEquals, "old name"), movie, env) {
		t.Fatal("expected direct collections without modifier")
	}
}

func TestEpisodesWithinSeriesModifier(t *testing.T) {
	series := &catalog.Item{ID: "s1", Type: catalog.TypeSeries, Genres: []string{"Animation"}}
	episode := &catalog.Item{ID: "e1", Type: catalog.TypeEpisode, SeriesID: "s1", ParentID: "season1"}
	env := NewEnv([]*catalog.Item{series, episode}, "u1", "u1")

	plain := mustCompile(t, "Genres", models.OpEquals, "animation")
	expanded := mustCompile(t, "Genres", models.OpEquals, "animation", models.Modifiers{IncludeEpisodesWithinSeries: true})

	if Evaluate(plain, episode, env) {
		t.Fatal("expected episode without genres not to match")
	}
	if !Evaluate(expanded, episode, env) {
		t.Fatal("expected series genres to be searched")
	}
}

func TestSimilarTo(t *testing.T) {
	heat := &catalog.Item{
		ID: "m1", Name: "Heat", ProductionYear: 1995, CommunityRating: ptr(8.3),
		Genres: []string{"Crime", "Thriller"}, Studios: []string{"Warner"},
		People: []catalog.Person{{Name: "Al Pacino", Role: catalog.RoleActor}, {Name: "Michael Mann", Role: catalog.RoleDirector}},
	}
	thief := &catalog.Item{
		ID: "m2", Name: "Thief", ProductionYear: 1981, CommunityRating: ptr(7.4),
		Genres: []string{"Crime", "Thriller"}, Studios: []string{"Warner"},
		People: []catalog.Person{{Name: "Michael Mann", Role: catalog.RoleDirector}},
	}
	cartoon := &catalog.Item{ID: "m3", Name: "Bunny Hop", ProductionYear: 2020, Genres: []string{"Animation"}}
	env := NewEnv([]*catalog.Item{heat, thief, cartoon}, "u1", "u1")

	c := mustCompile(t, "SimilarTo", models.OpSimilarTo, "heat", models.Modifiers{MinSimilarity: 0.4})
	if !Evaluate(c, thief, env) {
		t.Fatalf("expected Thief to be similar to Heat, score %.2f", Similarity(heat, thief))
	}
	if Evaluate(c, cartoon, env) {
		t.Fatal("expected unrelated item not to match")
	}
	if Evaluate(c, heat, env) {
		t.Fatal("expected reference item not to match itself")
	}
	if Similarity(heat, thief) <= Similarity(heat, cartoon) {
		t.Fatal("expected shared genres and crew to outscore an unrelated item")
	}
}
