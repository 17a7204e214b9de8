/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestPublishStampsTypeAndTime(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRefreshStarted, EventRefreshCompleted)

	bus.Publish(EventRefreshStarted, Payload{"list_id": "l1"})
	bus.Publish(EventListSaved, Payload{"list_id": "l1"})
	bus.Publish(EventRefreshCompleted, Payload{"list_id": "l1"})

	first := <-sub
	if first["type"] != string(EventRefreshStarted) || first["list_id"] != "l1" || first["at"] == nil {
		t.Fatalf("unexpected payload %v", first)
	}
	second := <-sub
	if second["type"] != string(EventRefreshCompleted) {
		t.Fatalf("expected completed event, got %v", second)
	}
	select {
	case extra := <-sub:
		t.Fatalf("unsubscribed type delivered: %v", extra)
	default:
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRefreshProgress)
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(EventRefreshProgress, Payload{"n": i})
	}
	if len(sub) != subscriberBuffer {
		t.Fatalf("expected full buffer, got %d", len(sub))
	}
	if bus.Dropped() != 5 {
		t.Fatalf("expected 5 dropped, got %d", bus.Dropped())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventListSaved, EventListDeleted)
	if bus.Subscribers(EventListSaved) != 1 {
		t.Fatal("expected one subscriber")
	}
	bus.Unsubscribe(sub)
	if bus.Subscribers(EventListSaved) != 0 || bus.Subscribers(EventListDeleted) != 0 {
		t.Fatal("subscriber not removed")
	}
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Unsubscribe(sub)
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(EventBatchStarted, nil)
}
