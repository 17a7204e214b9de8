/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType enumerates event categories.
type EventType string

const (
	EventRefreshStarted   EventType = "refresh.started"
	EventRefreshProgress  EventType = "refresh.progress"
	EventRefreshCompleted EventType = "refresh.completed"
	EventBatchStarted     EventType = "batch.started"
	EventBatchCompleted   EventType = "batch.completed"
	EventListSaved        EventType = "list.saved"
	EventListDeleted      EventType = "list.deleted"
)

// Payload is an event body. Publish stamps "type" and "at".
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// subscriberBuffer is the per-subscriber queue; slow readers lose events.
const subscriberBuffer = 8

// Bus is an in-process pub/sub for refresh lifecycle events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Subscriber
	dropped atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one or more event types. The same
// channel receives every listed type.
func (b *Bus) Subscribe(types ...EventType) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends a copy of payload to every subscriber without blocking.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	msg := make(Payload, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = string(eventType)
	msg["at"] = time.Now().UTC()

	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes the subscriber from every type and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for t, subs := range b.subs {
		for i, candidate := range subs {
			if candidate == sub {
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				found = true
				break
			}
		}
	}
	if found {
		close(sub)
	}
}

// Subscribers reports how many subscribers listen for eventType.
func (b *Bus) Subscribers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Dropped reports events discarded because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
