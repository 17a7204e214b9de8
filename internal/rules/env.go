/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/friendsincode/smartlists/internal/catalog"
)

// Env is the evaluation context shared by every expression of one Filter
// call. Indexes are built lazily; an Env must not be shared between
// goroutines.
type Env struct {
	// Items is the full fetched catalog, including widened types.
	Items []*catalog.Item
	// EvalUserID supplies personal data for user-scoped fields.
	EvalUserID string
	// OwnerUserID supplies personal data for owner based ordering.
	OwnerUserID string
	Now         time.Time
	Rand        *rand.Rand
	// OnError is called when an expression fails on a single item.
	OnError func(c *Compiled, item *catalog.Item, cause any)

	byID       map[string]*catalog.Item
	byName     map[string][]*catalog.Item
	containers map[string][]*catalog.Item
	episodes   map[string][]*catalog.Item
	features   map[string]*features
	refs       map[string][]*catalog.Item
}

// NewEnv creates an environment over a fetched catalog.
func NewEnv(items []*catalog.Item, evalUserID, ownerUserID string) *Env {
	now := time.Now()
	return &Env{
		Items:       items,
		EvalUserID:  evalUserID,
		OwnerUserID: ownerUserID,
		Now:         now,
		Rand:        rand.New(rand.NewSource(now.UnixNano())),
	}
}

func (e *Env) item(id string) *catalog.Item {
	if e.byID == nil {
		e.byID = make(map[string]*catalog.Item, len(e.Items))
		for _, it := range e.Items {
			e.byID[it.ID] = it
		}
	}
	return e.byID[id]
}

func (e *Env) itemsNamed(name string) []*catalog.Item {
	if e.byName == nil {
		e.byName = make(map[string][]*catalog.Item, len(e.Items))
		for _, it := range e.Items {
			key := strings.ToLower(strings.TrimSpace(it.Name))
			e.byName[key] = append(e.byName[key], it)
		}
	}
	return e.byName[strings.ToLower(strings.TrimSpace(name))]
}

// containersOf returns the box sets that list id as a direct member.
// Nested box sets are not followed.
func (e *Env) containersOf(id string) []*catalog.Item {
	if e.containers == nil {
		e.containers = make(map[string][]*catalog.Item)
		for _, it := range e.Items {
			if it.Type != catalog.TypeBoxSet {
				continue
			}
			for _, member := range it.MemberIDs {
				e.containers[member] = append(e.containers[member], it)
			}
		}
	}
	return e.containers[id]
}

// seriesOf returns the series ancestor of an episode or season.
func (e *Env) seriesOf(it *catalog.Item) *catalog.Item {
	if it.SeriesID != "" {
		if s := e.item(it.SeriesID); s != nil && s.Type == catalog.TypeSeries {
			return s
		}
	}
	for parent, hops := e.item(it.ParentID), 0; parent != nil && hops < 4; parent, hops = e.item(parent.ParentID), hops+1 {
		if parent.Type == catalog.TypeSeries {
			return parent
		}
	}
	return nil
}

// seriesEpisodes returns a series' episodes ordered by season then episode
// number, falling back to catalog order.
func (e *Env) seriesEpisodes(seriesID string) []*catalog.Item {
	if e.episodes == nil {
		e.episodes = make(map[string][]*catalog.Item)
		for _, it := range e.Items {
			if it.Type == catalog.TypeEpisode && it.SeriesID != "" {
				e.episodes[it.SeriesID] = append(e.episodes[it.SeriesID], it)
			}
		}
		for _, eps := range e.episodes {
			sort.SliceStable(eps, func(i, j int) bool {
				si, sj := indexOr(eps[i].ParentIndexNumber), indexOr(eps[j].ParentIndexNumber)
				if si != sj {
					return si < sj
				}
				return indexOr(eps[i].IndexNumber) < indexOr(eps[j].IndexNumber)
			})
		}
	}
	return e.episodes[seriesID]
}

func indexOr(v *int) int {
	if v == nil {
		return int(^uint(0) >> 1)
	}
	return *v
}

func (e *Env) userData(it *catalog.Item, userID string) catalog.UserData {
	data, _ := it.DataFor(userID)
	return data
}

func (e *Env) reportError(c *Compiled, it *catalog.Item, cause any) {
	if e.OnError != nil {
		e.OnError(c, it, cause)
	}
}
