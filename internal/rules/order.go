/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

// Sort keys.
const (
	OrderNone            = "NoOrder"
	OrderRandom          = "Random"
	OrderName            = "Name"
	OrderSortName        = "SortName"
	OrderSeriesName      = "SeriesName"
	OrderProductionYear  = "ProductionYear"
	OrderCommunityRating = "CommunityRating"
	OrderCriticRating    = "CriticRating"
	OrderDateCreated     = "DateCreated"
	OrderPremiereDate    = "PremiereDate"
	OrderRuntime         = "Runtime"
	OrderPlayCount       = "PlayCount"
	OrderLastPlayed      = "LastPlayed"
	OrderSeasonEpisode   = "SeasonEpisode"
	OrderSimilarity      = "Similarity"
)

// ErrUnknownSortKey reports a sort key outside the supported set.
var ErrUnknownSortKey = errors.New("unknown sort key")

type sortValue struct {
	missing bool
	text    string
	nums    []float64
}

type extractor func(it *catalog.Item, env *Env, refs []string) sortValue

func number(v float64, ok bool) sortValue {
	if !ok {
		return sortValue{missing: true}
	}
	return sortValue{nums: []float64{v}}
}

func text(s string) sortValue {
	return sortValue{text: strings.ToLower(s)}
}

var sortKeys = map[string]extractor{
	strings.ToLower(OrderName): func(it *catalog.Item, _ *Env, _ []string) sortValue { return text(it.Name) },
	strings.ToLower(OrderSortName): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		if it.SortName == "" {
			return text(it.Name)
		}
		return text(it.SortName)
	},
	strings.ToLower(OrderSeriesName): func(it *catalog.Item, _ *Env, _ []string) sortValue { return text(it.SeriesName) },
	strings.ToLower(OrderProductionYear): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		return number(float64(it.ProductionYear), it.ProductionYear > 0)
	},
	strings.ToLower(OrderCommunityRating): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		return number(optionalFloat(it.CommunityRating))
	},
	strings.ToLower(OrderCriticRating): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		return number(optionalFloat(it.CriticRating))
	},
	strings.ToLower(OrderDateCreated): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		return number(float64(it.DateCreated.Unix()), !it.DateCreated.IsZero())
	},
	strings.ToLower(OrderPremiereDate): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		t, ok := optionalTime(it.PremiereDate)
		return number(float64(t.Unix()), ok)
	},
	strings.ToLower(OrderRuntime): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		return number(it.RuntimeMinutes(), it.Runtime > 0)
	},
	// Owner keys read the list owner's data even when filtering used
	// another evaluation user.
	strings.ToLower(OrderPlayCount): func(it *catalog.Item, env *Env, _ []string) sortValue {
		return number(float64(env.userData(it, env.OwnerUserID).PlayCount), true)
	},
	strings.ToLower(OrderLastPlayed): func(it *catalog.Item, env *Env, _ []string) sortValue {
		t, ok := optionalTime(env.userData(it, env.OwnerUserID).LastPlayedDate)
		return number(float64(t.Unix()), ok)
	},
	strings.ToLower(OrderSeasonEpisode): func(it *catalog.Item, _ *Env, _ []string) sortValue {
		season, _ := optionalInt(it.ParentIndexNumber)
		episode, _ := optionalInt(it.IndexNumber)
		v := text(it.SeriesName)
		v.nums = []float64{season, episode}
		return v
	},
	strings.ToLower(OrderSimilarity): func(it *catalog.Item, env *Env, refs []string) sortValue {
		return number(similarityScore(refs, it, env), len(refs) > 0)
	},
}

// ValidateOrder rejects unknown sort keys.
func ValidateOrder(keys []models.SortKey) error {
	for _, k := range keys {
		name := strings.ToLower(k.Field)
		if name == strings.ToLower(OrderNone) || name == strings.ToLower(OrderRandom) {
			continue
		}
		if _, ok := sortKeys[name]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownSortKey, k.Field)
		}
	}
	return nil
}

// SortKeyNames lists the supported sort keys.
func SortKeyNames() []string {
	return []string{
		OrderNone, OrderRandom, OrderName, OrderSortName, OrderSeriesName,
		OrderProductionYear, OrderCommunityRating, OrderCriticRating,
		OrderDateCreated, OrderPremiereDate, OrderRuntime, OrderPlayCount,
		OrderLastPlayed, OrderSeasonEpisode, OrderSimilarity,
	}
}

func compareValues(a, b sortValue) int {
	if c := strings.Compare(a.text, b.text); c != 0 {
		return c
	}
	for i := 0; i < len(a.nums) && i < len(b.nums); i++ {
		if c := cmp.Compare(a.nums[i], b.nums[i]); c != 0 {
			return c
		}
	}
	return 0
}

type orderStep struct {
	extract extractor
	desc    bool
	random  bool
}

// ApplyOrder returns items sorted by keys. NoOrder keys contribute nothing,
// Random draws a fresh permutation from env.Rand, and ties keep input order.
// Items with a missing value sort last in either direction.
func ApplyOrder(items []*catalog.Item, keys []models.SortKey, env *Env, refs []string) []*catalog.Item {
	out := make([]*catalog.Item, len(items))
	copy(out, items)

	steps := make([]orderStep, 0, len(keys))
	for _, k := range keys {
		name := strings.ToLower(k.Field)
		switch name {
		case strings.ToLower(OrderNone):
			continue
		case strings.ToLower(OrderRandom):
			steps = append(steps, orderStep{random: true})
			continue
		}
		extract, ok := sortKeys[name]
		if !ok {
			continue
		}
		desc := k.Direction == models.Descending
		if name == strings.ToLower(OrderSimilarity) && k.Direction == "" {
			desc = true
		}
		steps = append(steps, orderStep{extract: extract, desc: desc})
	}
	if len(steps) == 0 {
		return out
	}

	// Precompute one row of values per item so extractors run once.
	rows := make([][]sortValue, len(out))
	for i, it := range out {
		row := make([]sortValue, len(steps))
		for s, step := range steps {
			if step.random {
				row[s] = sortValue{nums: []float64{env.Rand.Float64()}}
				continue
			}
			row[s] = step.extract(it, env, refs)
		}
		rows[i] = row
	}

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := rows[idx[a]], rows[idx[b]]
		for s, step := range steps {
			va, vb := ra[s], rb[s]
			if va.missing || vb.missing {
				if va.missing == vb.missing {
					continue
				}
				return vb.missing
			}
			c := compareValues(va, vb)
			if c == 0 {
				continue
			}
			if step.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	sorted := make([]*catalog.Item, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}
