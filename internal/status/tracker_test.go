/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package status

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/models"
)

func TestTrackerLifecycle(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventRefreshStarted, events.EventRefreshProgress, events.EventRefreshCompleted)
	tr := NewTracker(10, bus, zerolog.Nop())

	tr.Started("l1", "Jazz", models.OperationRefresh, models.TriggerManual)
	tr.Progress("l1", 50, 200)

	snap := tr.Snapshot()
	if len(snap.InFlight) != 1 || snap.InFlight[0].Processed != 50 || snap.InFlight[0].Total != 200 {
		t.Fatalf("unexpected in-flight state %+v", snap.InFlight)
	}

	tr.Completed(models.RefreshResult{ListID: "l1", Operation: models.OperationRefresh, Trigger: models.TriggerManual, Success: true, Elapsed: 2 * time.Second})
	tr.Completed(models.RefreshResult{ListID: "l2", Operation: models.OperationRefresh, Trigger: models.TriggerManual, Success: false, Elapsed: 4 * time.Second})

	snap = tr.Snapshot()
	if len(snap.InFlight) != 0 {
		t.Fatalf("in-flight not cleared: %+v", snap.InFlight)
	}
	if snap.Stats.Total != 2 || snap.Stats.Succeeded != 1 || snap.Stats.Failed != 1 || snap.Stats.AverageDuration != 3*time.Second {
		t.Fatalf("unexpected stats %+v", snap.Stats)
	}
	if len(snap.History) != 2 || snap.History[0].ListID != "l2" {
		t.Fatalf("history should be newest first: %+v", snap.History)
	}

	want := []events.EventType{events.EventRefreshStarted, events.EventRefreshProgress, events.EventRefreshCompleted, events.EventRefreshCompleted}
	for _, w := range want {
		got := <-sub
		if got["type"] != string(w) {
			t.Fatalf("expected %s, got %v", w, got["type"])
		}
	}
}

func TestTrackerHistoryIsBounded(t *testing.T) {
	tr := NewTracker(3, nil, zerolog.Nop())
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		tr.Completed(models.RefreshResult{ListID: id, Success: true})
	}
	h := tr.History(0)
	if len(h) != 3 || h[0].ListID != "e" || h[2].ListID != "c" {
		t.Fatalf("unexpected history %+v", h)
	}
	if h := tr.History(1); len(h) != 1 || h[0].ListID != "e" {
		t.Fatalf("limit not applied: %+v", h)
	}
}

func TestProgressForUnknownListIsIgnored(t *testing.T) {
	tr := NewTracker(0, nil, zerolog.Nop())
	tr.Progress("ghost", 1, 2)
	if len(tr.Snapshot().InFlight) != 0 {
		t.Fatal("progress should not create in-flight entries")
	}
}
