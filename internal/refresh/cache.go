/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// CacheKey identifies one catalog snapshot: a user, a canonical media type
// set and whether the set was widened for cross-entity lookups.
type CacheKey struct {
	UserID   string
	Types    string
	Expanded bool
}

// NewCacheKey canonicalises types (sorted, deduplicated).
func NewCacheKey(userID string, types []catalog.MediaType, expanded bool) CacheKey {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	slices.Sort(names)
	names = slices.Compact(names)
	return CacheKey{UserID: userID, Types: strings.Join(names, ","), Expanded: expanded}
}

// MediaTypes expands the canonical type list.
func (k CacheKey) MediaTypes() []catalog.MediaType {
	if k.Types == "" {
		return nil
	}
	parts := strings.Split(k.Types, ",")
	out := make([]catalog.MediaType, len(parts))
	for i, p := range parts {
		out[i] = catalog.MediaType(p)
	}
	return out
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s/%s/%t", k.UserID, k.Types, k.Expanded)
}

// CacheFetchError is a failed catalog query, shared by every list using
// the same key.
type CacheFetchError struct {
	Key CacheKey
	Err error
}

func (e *CacheFetchError) Error() string {
	return fmt.Sprintf("catalog fetch for %s: %v", e.Key, e.Err)
}

func (e *CacheFetchError) Unwrap() error { return e.Err }

type cacheEntry struct {
	items []*catalog.Item
	err   error
	// abandoned marks a fetch cancelled because every waiter left.
	abandoned bool
}

// flight is the context of one in-progress fetch. It is cancelled when
// its last waiter leaves, not when the caller that started it does.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// CacheStats counts provider calls and served lookups.
type CacheStats struct {
	Fetches int `json:"fetches"`
	Hits    int `json:"hits"`
}

// Cache memoises catalog snapshots for one batch. Concurrent Gets of one
// key share a single provider call; the result is published only when
// complete. Each caller waits on its own context.
type Cache struct {
	provider catalog.Provider
	group    singleflight.Group

	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
	flights map[CacheKey]*flight
	stats   CacheStats
}

// NewCache creates an empty cache over provider.
func NewCache(provider catalog.Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[CacheKey]cacheEntry),
		flights:  make(map[CacheKey]*flight),
	}
}

func (c *Cache) lookup(key CacheKey) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Get returns the snapshot for key, fetching it at most once. Failures are
// memoised too, except context cancellation. A cancelled caller returns
// its own context error while other waiters keep the fetch alive.
func (c *Cache) Get(ctx context.Context, key CacheKey) ([]*catalog.Item, error) {
	for {
		if e, ok := c.lookup(key); ok {
			c.hit()
			return e.items, e.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := c.join(ctx, key)
		ch := c.group.DoChan(key.String(), func() (any, error) {
			if e, ok := c.lookup(key); ok {
				return e, nil
			}
			e := c.fetch(f.ctx, key)
			if f.ctx.Err() != nil && isContextErr(e.err) {
				e.abandoned = true
			}
			if e.err == nil || !isContextErr(e.err) {
				c.mu.Lock()
				c.entries[key] = e
				c.mu.Unlock()
			}
			return e, nil
		})

		select {
		case r := <-ch:
			c.leave(key, f)
			e := r.Val.(cacheEntry)
			if e.abandoned {
				// Joined a fetch whose own waiters had all left.
				continue
			}
			return e.items, e.err
		case <-ctx.Done():
			c.leave(key, f)
			return nil, ctx.Err()
		}
	}
}

// join registers a waiter on the key's flight, creating it if needed.
// The flight keeps ctx's values but not its cancellation.
func (c *Cache) join(ctx context.Context, key CacheKey) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leave(key CacheKey, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cache) fetch(ctx context.Context, key CacheKey) cacheEntry {
	ctx, span := telemetry.StartSpan(ctx, "refresh", "cache.fetch")
	defer span.End()

	c.mu.Lock()
	c.stats.Fetches++
	c.mu.Unlock()
	telemetry.CacheMisses.Inc()

	start := time.Now()
	items, err := c.provider.Query(ctx, key.UserID, key.MediaTypes(), true)
	telemetry.CatalogFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.CatalogFetchTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return cacheEntry{err: &CacheFetchError{Key: key, Err: err}}
	}
	telemetry.CatalogFetchTotal.WithLabelValues("success").Inc()
	telemetry.AddSpanAttributes(span, map[string]any{"key": key.String(), "items": len(items)})
	return cacheEntry{items: items}
}

func (c *Cache) hit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	telemetry.CacheHits.Inc()
}

// Prefetch warms keys with at most workers concurrent provider calls.
// Individual failures stay memoised for Get; only cancellation is returned.
func (c *Cache) Prefetch(ctx context.Context, keys []CacheKey, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := c.Get(gctx, key)
			if isContextErr(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Stats returns fetch and hit counts.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
