/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/smartlists/internal/models"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(models.RefreshQueueItem{ListID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("len = %d", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if item.ListID != want || item.ID == "" || item.EnqueuedAt.IsZero() {
			t.Fatalf("unexpected item %+v", item)
		}
	}
}

func TestQueueDequeueWaits(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			got <- item.ListID
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(models.RefreshQueueItem{ListID: "late"}); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-got:
		if id != "late" {
			t.Fatalf("got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestQueueDequeueHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewQueue().Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue()
	if err := q.Enqueue(models.RefreshQueueItem{ListID: "a"}); err != nil {
		t.Fatal(err)
	}
	q.Close()
	if err := q.Enqueue(models.RefreshQueueItem{ListID: "b"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if item, err := q.Dequeue(context.Background()); err != nil || item.ListID != "a" {
		t.Fatalf("waiting items should drain, got %+v %v", item, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after drain, got %v", err)
	}
}
