/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// ErrQueueClosed is returned once the queue has been closed.
var ErrQueueClosed = errors.New("refresh queue closed")

// Queue is an unbounded FIFO of refresh work with a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []models.RefreshQueueItem
	closed bool
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends an item, stamping its id and enqueue time if unset.
func (q *Queue) Enqueue(item models.RefreshQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	telemetry.QueueDepth.Set(float64(depth))
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until an item is available, the context ends, or the
// queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (models.RefreshQueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = models.RefreshQueueItem{}
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			telemetry.QueueDepth.Set(float64(depth))
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return models.RefreshQueueItem{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return models.RefreshQueueItem{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len reports the number of waiting items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Enqueue calls. Waiting items can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
