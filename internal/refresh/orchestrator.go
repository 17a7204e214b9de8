/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/reconcile"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// ErrBatchConflict is returned when a batch refresh is already running.
var ErrBatchConflict = errors.New("batch refresh already running")

// Reporter receives refresh lifecycle notifications.
type Reporter interface {
	Started(listID, listName string, op models.Operation, trigger models.Trigger)
	Progress(listID string, processed, total int)
	Completed(result models.RefreshResult)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	Get(ctx context.Context, id string) (*models.ListSpec, bool, error)
	List(ctx context.Context) ([]*models.ListSpec, error)
	Save(ctx context.Context, spec *models.ListSpec) error
	Delete(ctx context.Context, id string) error
	SetArtifact(ctx context.Context, listID, userID, artifactID string) error
	ClearArtifact(ctx context.Context, listID, userID string) error
}

type nopReporter struct{}

func (nopReporter) Started(string, string, models.Operation, models.Trigger) {}
func (nopReporter) Progress(string, int, int)                                {}
func (nopReporter) Completed(models.RefreshResult)                           {}

// Config wires an orchestrator.
type Config struct {
	Engine     *engine.Engine
	Provider   catalog.Provider
	Store      Store
	Strategies map[models.ListKind]reconcile.Strategy
	Reporter   Reporter
	Bus        *events.Bus
	Queue      *Queue
	// PrefetchWorkers bounds concurrent catalog fetches in a batch.
	PrefetchWorkers int
}

// Orchestrator drains the refresh queue and runs batch refreshes. At most
// one list is processed at a time, so no two writers touch one artifact.
type Orchestrator struct {
	engine     *engine.Engine
	provider   catalog.Provider
	store      Store
	strategies map[models.ListKind]reconcile.Strategy
	reporter   Reporter
	bus        *events.Bus
	queue      *Queue
	workers    int
	logger     zerolog.Logger

	runMu    sync.Mutex
	batching atomic.Bool
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		engine:     cfg.Engine,
		provider:   cfg.Provider,
		store:      cfg.Store,
		strategies: cfg.Strategies,
		reporter:   cfg.Reporter,
		bus:        cfg.Bus,
		queue:      cfg.Queue,
		workers:    cfg.PrefetchWorkers,
		logger:     logger.With().Str("component", "refresh").Logger(),
	}
	if o.reporter == nil {
		o.reporter = nopReporter{}
	}
	if o.queue == nil {
		o.queue = NewQueue()
	}
	if o.workers <= 0 {
		o.workers = 4
	}
	return o
}

// Enqueue schedules one unit of work for the consumer.
func (o *Orchestrator) Enqueue(item models.RefreshQueueItem) error {
	if err := o.queue.Enqueue(item); err != nil {
		return err
	}
	o.logger.Debug().
		Str("list_id", item.ListID).
		Str("user_id", item.UserID).
		Str("op", string(item.Operation)).
		Str("trigger", string(item.Trigger)).
		Msg("refresh enqueued")
	return nil
}

// String names the consumer in supervisor logs.
func (o *Orchestrator) String() string { return "refresh-consumer" }

// QueueLen reports waiting items.
func (o *Orchestrator) QueueLen() int { return o.queue.Len() }

// Serve is the queue consumer. It runs until ctx ends.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.logger.Info().Msg("refresh consumer started")
	for {
		item, err := o.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				o.logger.Info().Msg("refresh queue closed, consumer stopping")
				return suture.ErrDoNotRestart
			}
			return err
		}
		o.runItem(ctx, item)
	}
}

func (o *Orchestrator) runItem(ctx context.Context, item models.RefreshQueueItem) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			telemetry.ConsumerPanics.Inc()
			o.logger.Error().Interface("panic", r).Str("list_id", item.ListID).Msg("refresh item panicked")
			o.reporter.Completed(models.RefreshResult{
				ListID:     item.ListID,
				UserID:     item.UserID,
				Operation:  item.Operation,
				Trigger:    item.Trigger,
				Message:    fmt.Sprintf("internal error: %v", r),
				FinishedAt: time.Now().UTC(),
			})
		}
	}()

	o.process(ctx, item, NewCache(o.provider))
}

// BatchRefresh refreshes every enabled list once. A second call while one
// runs fails with ErrBatchConflict. On cancellation it stops between lists
// and returns the results gathered so far with the context error.
func (o *Orchestrator) BatchRefresh(ctx context.Context, trigger models.Trigger) ([]models.RefreshResult, error) {
	if !o.batching.CompareAndSwap(false, true) {
		telemetry.BatchConflicts.Inc()
		return nil, ErrBatchConflict
	}
	defer o.batching.Store(false)

	o.runMu.Lock()
	defer o.runMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "refresh", "refresh.batch")
	defer span.End()

	start := time.Now()
	specs, err := o.store.List(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load lists: %w", err)
	}

	var enabled []*models.ListSpec
	for _, spec := range specs {
		if spec.Enabled {
			enabled = append(enabled, spec)
		}
	}

	o.bus.Publish(events.EventBatchStarted, events.Payload{"trigger": string(trigger), "lists": len(enabled)})
	o.logger.Info().Str("trigger", string(trigger)).Int("lists", len(enabled)).Msg("batch refresh started")

	cache := NewCache(o.provider)
	if err := cache.Prefetch(ctx, o.cacheKeys(enabled), o.workers); err != nil && !isContextErr(err) {
		o.logger.Warn().Err(err).Msg("catalog prefetch failed")
	}

	var results []models.RefreshResult
	for _, spec := range enabled {
		if ctx.Err() != nil {
			break
		}
		results = append(results, o.process(ctx, models.RefreshQueueItem{
			ListID:     spec.ID,
			Kind:       spec.Kind,
			Operation:  models.OperationRefresh,
			Spec:       spec,
			Trigger:    trigger,
			EnqueuedAt: start,
		}, cache)...)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	stats := cache.Stats()
	o.bus.Publish(events.EventBatchCompleted, events.Payload{
		"trigger":   string(trigger),
		"results":   len(results),
		"failed":    failed,
		"fetches":   stats.Fetches,
		"cancelled": ctx.Err() != nil,
	})
	o.logger.Info().
		Str("trigger", string(trigger)).
		Int("results", len(results)).
		Int("failed", failed).
		Int("catalog_fetches", stats.Fetches).
		Dur("elapsed", time.Since(start)).
		Msg("batch refresh finished")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// BatchRunning reports whether a batch refresh is in progress.
func (o *Orchestrator) BatchRunning() bool { return o.batching.Load() }

func (o *Orchestrator) cacheKeys(specs []*models.ListSpec) []CacheKey {
	seen := make(map[CacheKey]struct{})
	var keys []CacheKey
	for _, spec := range specs {
		types, expanded := o.engine.RequiredTypes(spec)
		for _, owner := range ownersOf(spec, "") {
			key := NewCacheKey(owner, types, expanded)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// ownersOf resolves the users a queue item applies to. Collections have a
// single owner.
func ownersOf(spec *models.ListSpec, userID string) []string {
	if userID != "" {
		return []string{userID}
	}
	if spec.Kind == models.ListKindCollection && len(spec.Owners) > 1 {
		return spec.Owners[:1]
	}
	return spec.Owners
}

func (o *Orchestrator) process(ctx context.Context, item models.RefreshQueueItem, cache *Cache) []models.RefreshResult {
	ctx, span := telemetry.StartSpan(ctx, "refresh", "refresh.item")
	defer span.End()

	spec := item.Spec
	if spec == nil {
		loaded, found, err := o.store.Get(ctx, item.ListID)
		if err != nil || !found {
			msg := "list not found"
			if err != nil {
				msg = err.Error()
			}
			res := models.RefreshResult{ListID: item.ListID, UserID: item.UserID, Operation: item.Operation, Trigger: item.Trigger, Message: msg, FinishedAt: time.Now().UTC()}
			o.reporter.Completed(res)
			return []models.RefreshResult{res}
		}
		spec = loaded
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"list_id":   spec.ID,
		"operation": string(item.Operation),
		"trigger":   string(item.Trigger),
	})

	var results []models.RefreshResult
	for _, owner := range ownersOf(spec, item.UserID) {
		o.reporter.Started(spec.ID, spec.Name, item.Operation, item.Trigger)
		res := o.processOwner(ctx, item, spec, owner, cache)
		o.reporter.Completed(res)
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) processOwner(ctx context.Context, item models.RefreshQueueItem, spec *models.ListSpec, owner string, cache *Cache) models.RefreshResult {
	start := time.Now()
	res := models.RefreshResult{
		ListID:    spec.ID,
		ListName:  spec.Name,
		UserID:    owner,
		Operation: item.Operation,
		Trigger:   item.Trigger,
	}
	done := func(err error, msg string) models.RefreshResult {
		res.Elapsed = time.Since(start)
		res.FinishedAt = time.Now().UTC()
		res.Success = err == nil
		res.Message = msg
		if err != nil {
			res.Message = err.Error()
		}
		return res
	}

	strategy, ok := o.strategies[spec.Kind]
	if !ok {
		return done(fmt.Errorf("no reconciler for list kind %q", spec.Kind), "")
	}

	existing, gone := o.currentArtifact(ctx, spec, owner, item.Operation)
	if gone {
		// The list's delete item owns any cleanup.
		return done(nil, "list deleted, skipped")
	}

	if item.Operation == models.OperationDelete || !spec.Enabled {
		if err := strategy.Remove(ctx, existing); err != nil {
			return done(err, "")
		}
		if err := o.store.ClearArtifact(context.WithoutCancel(ctx), spec.ID, owner); err != nil {
			return done(err, "")
		}
		msg := "artifact removed"
		if item.Operation != models.OperationDelete {
			msg = "list disabled, artifact removed"
		}
		return done(nil, msg)
	}

	types, expanded := o.engine.RequiredTypes(spec)
	items, err := cache.Get(ctx, NewCacheKey(owner, types, expanded))
	if err != nil {
		return done(err, "")
	}

	filtered, err := o.engine.Filter(ctx, engine.FilterRequest{
		Items:       items,
		Spec:        spec,
		EvalUserID:  owner,
		OwnerUserID: owner,
		Progress: func(processed, total int) {
			o.reporter.Progress(spec.ID, processed, total)
		},
	})
	if err != nil {
		return done(err, "")
	}

	out, err := strategy.Reconcile(ctx, spec, owner, filtered.Items, existing)
	if err != nil {
		return done(err, "")
	}
	res.ArtifactID = out.ArtifactID
	res.ItemCount = out.ItemCount
	res.RuntimeMinutes = out.RuntimeMinutes

	if out.ArtifactID != existing {
		// The artifact exists now; record it even if the batch was cancelled.
		if err := o.store.SetArtifact(context.WithoutCancel(ctx), spec.ID, owner, out.ArtifactID); err != nil {
			o.logger.Error().Err(err).Str("list_id", spec.ID).Str("user_id", owner).Str("artifact_id", out.ArtifactID).Msg("artifact id not recorded")
			return done(err, "")
		}
	}
	return done(nil, fmt.Sprintf("%d items", out.ItemCount))
}

// currentArtifact prefers the stored mapping, which may be newer than the
// queued snapshot. Deletes use the snapshot since the list may be gone.
// gone reports that a non-delete item outlived its list.
func (o *Orchestrator) currentArtifact(ctx context.Context, spec *models.ListSpec, owner string, op models.Operation) (id string, gone bool) {
	if op != models.OperationDelete {
		stored, found, err := o.store.Get(ctx, spec.ID)
		switch {
		case err != nil:
			o.logger.Warn().Err(err).Str("list_id", spec.ID).Msg("stored mapping unavailable, using snapshot")
		case !found:
			return "", true
		default:
			id, _ = stored.ArtifactFor(owner)
			return id, false
		}
	}
	id, _ = spec.ArtifactFor(owner)
	return id, false
}
