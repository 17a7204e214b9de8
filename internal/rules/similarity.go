/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"math"
	"strings"
	"unicode"

	"github.com/friendsincode/smartlists/internal/catalog"
)

// Feature weights sum to 1 so scores stay in [0, 1].
const (
	weightGenres    = 0.30
	weightTags      = 0.15
	weightCast      = 0.15
	weightCrew      = 0.10
	weightStudios   = 0.10
	weightLanguages = 0.05
	weightName      = 0.05
	weightYear      = 0.05
	weightRating    = 0.05
)

type features struct {
	genres, tags, cast, crew, studios, languages, name map[string]struct{}
	year                                               int
	rating                                             float64
	rated                                              bool
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func nameTokens(name string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func extractFeatures(it *catalog.Item) *features {
	f := &features{
		genres:    stringSet(it.Genres),
		tags:      stringSet(it.Tags),
		cast:      stringSet(it.PeopleWithRoles(catalog.RoleActor, catalog.RoleGuestStar)),
		crew:      stringSet(it.PeopleWithRoles(catalog.RoleDirector, catalog.RoleWriter, catalog.RoleProducer, catalog.RoleComposer)),
		studios:   stringSet(it.Studios),
		languages: stringSet(it.AudioLanguages),
		name:      nameTokens(it.Name),
		year:      it.ProductionYear,
	}
	if it.CommunityRating != nil {
		f.rating, f.rated = *it.CommunityRating, true
	}
	return f
}

func (e *Env) featuresOf(it *catalog.Item) *features {
	if e.features == nil {
		e.features = make(map[string]*features)
	}
	f, ok := e.features[it.ID]
	if !ok {
		f = extractFeatures(it)
		e.features[it.ID] = f
	}
	return f
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func proximity(a, b, span float64) float64 {
	return math.Max(0, 1-math.Abs(a-b)/span)
}

// Similarity scores two items over the weighted feature set.
func Similarity(a, b *catalog.Item) float64 {
	return scoreFeatures(extractFeatures(a), extractFeatures(b))
}

func scoreFeatures(a, b *features) float64 {
	score := weightGenres*jaccard(a.genres, b.genres) +
		weightTags*jaccard(a.tags, b.tags) +
		weightCast*jaccard(a.cast, b.cast) +
		weightCrew*jaccard(a.crew, b.crew) +
		weightStudios*jaccard(a.studios, b.studios) +
		weightLanguages*jaccard(a.languages, b.languages) +
		weightName*jaccard(a.name, b.name)
	if a.year > 0 && b.year > 0 {
		score += weightYear * proximity(float64(a.year), float64(b.year), 10)
	}
	if a.rated && b.rated {
		score += weightRating * proximity(a.rating, b.rating, 5)
	}
	return score
}

// referenceItems resolves reference titles against the fetched catalog.
func (e *Env) referenceItems(names []string) []*catalog.Item {
	key := strings.ToLower(strings.Join(names, "|"))
	if e.refs == nil {
		e.refs = make(map[string][]*catalog.Item)
	}
	if refs, ok := e.refs[key]; ok {
		return refs
	}
	var refs []*catalog.Item
	for _, name := range names {
		refs = append(refs, e.itemsNamed(name)...)
	}
	e.refs[key] = refs
	return refs
}

// similarityScore is the best score of item against any reference other
// than itself. Zero when no reference resolves.
func similarityScore(names []string, item *catalog.Item, env *Env) float64 {
	best := 0.0
	candidate := env.featuresOf(item)
	for _, ref := range env.referenceItems(names) {
		if ref.ID == item.ID {
			continue
		}
		best = math.Max(best, scoreFeatures(env.featuresOf(ref), candidate))
	}
	return best
}

// ReferenceNames splits a "|" separated list of reference titles.
func ReferenceNames(raw string) []string {
	return splitValues(raw)
}
