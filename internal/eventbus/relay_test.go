/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/events"
)

// hub fans every published message out to all attached transports,
// including the sender, like a broker does.
type hub struct {
	mu        sync.Mutex
	inboxes   []chan []byte
	published atomic.Int32
}

func (h *hub) attach() *memTransport {
	inbox := make(chan []byte, 16)
	h.mu.Lock()
	h.inboxes = append(h.inboxes, inbox)
	h.mu.Unlock()
	return &memTransport{hub: h, inbox: inbox}
}

type memTransport struct {
	hub   *hub
	inbox chan []byte
}

func (m *memTransport) Publish(_ context.Context, data []byte) error {
	m.hub.published.Add(1)
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	for _, inbox := range m.hub.inboxes {
		select {
		case inbox <- data:
		default:
		}
	}
	return nil
}

func (m *memTransport) Receive(ctx context.Context, handle func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-m.inbox:
			handle(data)
		}
	}
}

func (m *memTransport) Close() error { return nil }

func startRelay(t *testing.T, ctx context.Context, r *Relay, bus *events.Bus) {
	t.Helper()
	before := bus.Subscribers(events.EventBatchStarted)
	go func() { _ = r.Serve(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(events.EventBatchStarted) == before {
		if time.Now().After(deadline) {
			t.Fatal("relay did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelayForwardsBetweenInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &hub{}
	busA, busB := events.NewBus(), events.NewBus()
	relayA := NewRelay(busA, h.attach(), "node-a", nil, zerolog.Nop())
	relayB := NewRelay(busB, h.attach(), "node-b", nil, zerolog.Nop())

	localA := busA.Subscribe(events.EventBatchStarted)
	remoteB := busB.Subscribe(events.EventBatchStarted)

	startRelay(t, ctx, relayA, busA)
	startRelay(t, ctx, relayB, busB)

	busA.Publish(events.EventBatchStarted, events.Payload{"trigger": "manual", "lists": 3})

	select {
	case got := <-remoteB:
		if got[OriginKey] != "node-a" {
			t.Fatalf("origin = %v, want node-a", got[OriginKey])
		}
		if got["trigger"] != "manual" {
			t.Fatalf("trigger = %v", got["trigger"])
		}
		// Numbers come back as JSON numbers.
		if got["lists"] != float64(3) {
			t.Fatalf("lists = %v (%T)", got["lists"], got["lists"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}

	select {
	case <-localA:
	case <-time.After(time.Second):
		t.Fatal("local subscriber missed the event")
	}

	// Neither the echo to node-a nor the republished copy on node-b goes
	// back out.
	time.Sleep(100 * time.Millisecond)
	if n := h.published.Load(); n != 1 {
		t.Fatalf("published %d messages, want 1", n)
	}
	select {
	case dup := <-localA:
		t.Fatalf("node-a received its own event twice: %v", dup)
	default:
	}
}

func TestRelayFiltersTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &hub{}
	busA, busB := events.NewBus(), events.NewBus()
	relayA := NewRelay(busA, h.attach(), "node-a", nil, zerolog.Nop())
	relayB := NewRelay(busB, h.attach(), "node-b", []events.EventType{events.EventBatchStarted}, zerolog.Nop())

	gotB := busB.Subscribe(events.EventListSaved, events.EventBatchStarted)

	startRelay(t, ctx, relayA, busA)
	startRelay(t, ctx, relayB, busB)

	busA.Publish(events.EventListSaved, events.Payload{"list_id": "l1"})
	busA.Publish(events.EventBatchStarted, events.Payload{"trigger": "scheduled"})

	select {
	case got := <-gotB:
		if got["type"] != string(events.EventBatchStarted) {
			t.Fatalf("node-b received %v, want only batch events", got["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestRelayIgnoresMalformedMessages(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(DefaultTypes...)
	r := NewRelay(bus, &memTransport{hub: &hub{}}, "node-a", nil, zerolog.Nop())

	r.deliver([]byte(`{not json`))
	r.deliver([]byte(`{"event_type":"unknown.type","node_id":"node-b","payload":{}}`))

	select {
	case got := <-sub:
		t.Fatalf("unexpected event %v", got)
	default:
	}
}

func TestRelayReturnsWhenSubscriptionFails(t *testing.T) {
	bus := events.NewBus()
	r := NewRelay(bus, failingTransport{}, "node-a", nil, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error so the supervisor restarts the relay")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if bus.Subscribers(events.EventBatchStarted) != 0 {
		t.Fatal("relay left its bus subscription behind")
	}
}

type failingTransport struct{}

func (failingTransport) Publish(context.Context, []byte) error { return nil }
func (failingTransport) Receive(context.Context, func([]byte)) error {
	return context.DeadlineExceeded
}
func (failingTransport) Close() error { return nil }
