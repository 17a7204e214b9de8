/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package status tracks refresh activity for the status API.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// DefaultHistorySize bounds the result history when none is configured.
const DefaultHistorySize = 100

// Operation is a refresh currently in progress.
type Operation struct {
	ListID    string           `json:"listId"`
	ListName  string           `json:"listName"`
	Operation models.Operation `json:"operation"`
	Trigger   models.Trigger   `json:"trigger"`
	StartedAt time.Time        `json:"startedAt"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
}

// Stats aggregates completed refreshes since start.
type Stats struct {
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"averageDuration"`
	LastCompletedAt time.Time     `json:"lastCompletedAt,omitempty"`
}

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	InFlight []Operation            `json:"inFlight"`
	History  []models.RefreshResult `json:"history"`
	Stats    Stats                  `json:"stats"`
}

// Tracker records live and finished refreshes. It implements the refresh
// reporter contract.
type Tracker struct {
	bus    *events.Bus
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*Operation
	history  []models.RefreshResult
	next     int
	full     bool
	stats    Stats
	elapsed  time.Duration
}

// NewTracker creates a tracker keeping the last historySize results.
func NewTracker(historySize int, bus *events.Bus, logger zerolog.Logger) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{
		bus:      bus,
		logger:   logger.With().Str("component", "status").Logger(),
		inflight: make(map[string]*Operation),
		history:  make([]models.RefreshResult, historySize),
	}
}

// Started marks a list refresh as running.
func (t *Tracker) Started(listID, listName string, op models.Operation, trigger models.Trigger) {
	t.mu.Lock()
	t.inflight[listID] = &Operation{
		ListID:    listID,
		ListName:  listName,
		Operation: op,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	t.mu.Unlock()

	t.bus.Publish(events.EventRefreshStarted, events.Payload{
		"list_id":   listID,
		"list_name": listName,
		"operation": string(op),
		"trigger":   string(trigger),
	})
}

// Progress updates processed/total for a running refresh.
func (t *Tracker) Progress(listID string, processed, total int) {
	t.mu.Lock()
	op, ok := t.inflight[listID]
	if ok {
		op.Processed = processed
		op.Total = total
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.bus.Publish(events.EventRefreshProgress, events.Payload{
		"list_id":   listID,
		"processed": processed,
		"total":     total,
	})
}

// Completed records a finished refresh and clears its in-flight entry.
func (t *Tracker) Completed(result models.RefreshResult) {
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}

	t.mu.Lock()
	delete(t.inflight, result.ListID)
	t.history[t.next] = result
	t.next = (t.next + 1) % len(t.history)
	if t.next == 0 {
		t.full = true
	}
	t.stats.Total++
	if result.Success {
		t.stats.Succeeded++
	} else {
		t.stats.Failed++
	}
	t.elapsed += result.Elapsed
	t.stats.AverageDuration = t.elapsed / time.Duration(t.stats.Total)
	t.stats.LastCompletedAt = result.FinishedAt
	t.mu.Unlock()

	telemetry.ObserveRefresh(string(result.Operation), string(result.Trigger), result.Success, result.Elapsed)

	ev := t.logger.Info()
	if !result.Success {
		ev = t.logger.Warn()
	}
	ev.Str("list_id", result.ListID).
		Str("user_id", result.UserID).
		Str("op", string(result.Operation)).
		Str("trigger", string(result.Trigger)).
		Bool("success", result.Success).
		Int("items", result.ItemCount).
		Dur("elapsed", result.Elapsed).
		Str("message", result.Message).
		Msg("refresh finished")

	t.bus.Publish(events.EventRefreshCompleted, events.Payload{
		"list_id":     result.ListID,
		"user_id":     result.UserID,
		"success":     result.Success,
		"message":     result.Message,
		"item_count":  result.ItemCount,
		"elapsed_ms":  result.Elapsed.Milliseconds(),
		"artifact_id": result.ArtifactID,
	})
}

// History returns up to limit results, newest first. limit <= 0 means all.
func (t *Tracker) History(limit int) []models.RefreshResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.historyLocked(limit)
}

func (t *Tracker) historyLocked(limit int) []models.RefreshResult {
	n := t.next
	if t.full {
		n = len(t.history)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.RefreshResult, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (t.next - 1 - i + len(t.history)) % len(t.history)
		out = append(out, t.history[idx])
	}
	return out
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	ops := make([]Operation, 0, len(t.inflight))
	for _, op := range t.inflight {
		ops = append(ops, *op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartedAt.Before(ops[j].StartedAt) })

	return Snapshot{
		InFlight: ops,
		History:  t.historyLocked(0),
		Stats:    t.stats,
	}
}
