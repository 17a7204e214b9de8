/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays refresh lifecycle events between instances, so
// the status stream of every instance shows batches run by the leader.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// OriginKey marks payloads that arrived from another instance. Local
// consumers that must act once per cluster skip payloads carrying it.
const OriginKey = "origin"

// publishTimeout bounds one outbound publish.
const publishTimeout = 2 * time.Second

// Transport moves encoded events between instances.
type Transport interface {
	Publish(ctx context.Context, data []byte) error
	// Receive delivers inbound messages to handle until ctx ends or the
	// subscription fails.
	Receive(ctx context.Context, handle func([]byte)) error
	Close() error
}

// DefaultTypes are relayed when none are configured.
var DefaultTypes = []events.EventType{
	events.EventRefreshStarted,
	events.EventRefreshProgress,
	events.EventRefreshCompleted,
	events.EventBatchStarted,
	events.EventBatchCompleted,
	events.EventListSaved,
	events.EventListDeleted,
}

// message is the wire form of one relayed event.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	NodeID    string           `json:"node_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// Relay forwards local events to the transport and republishes remote ones
// on the local bus.
type Relay struct {
	bus       *events.Bus
	transport Transport
	nodeID    string
	types     map[events.EventType]struct{}
	typeList  []events.EventType
	logger    zerolog.Logger
}

// NewRelay creates a relay. An empty types list relays DefaultTypes.
func NewRelay(bus *events.Bus, transport Transport, nodeID string, types []events.EventType, logger zerolog.Logger) *Relay {
	if len(types) == 0 {
		types = DefaultTypes
	}
	set := make(map[events.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return &Relay{
		bus:       bus,
		transport: transport,
		nodeID:    nodeID,
		types:     set,
		typeList:  types,
		logger:    logger.With().Str("component", "event_relay").Str("node_id", nodeID).Logger(),
	}
}

// Serve relays until ctx ends. A failed subscription is returned so the
// supervisor restarts the relay.
func (r *Relay) Serve(ctx context.Context) error {
	sub := r.bus.Subscribe(r.typeList...)
	defer r.bus.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvErr := make(chan error, 1)
	go func() { recvErr <- r.transport.Receive(ctx, r.deliver) }()

	r.logger.Info().Int("types", len(r.typeList)).Msg("event relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("subscription ended")
			}
			return fmt.Errorf("event relay receive: %w", err)
		case payload, ok := <-sub:
			if !ok {
				return nil
			}
			r.forward(ctx, payload)
		}
	}
}

// String names the relay in supervisor logs.
func (r *Relay) String() string { return "event-relay" }

func (r *Relay) forward(ctx context.Context, payload events.Payload) {
	if _, remote := payload[OriginKey]; remote {
		return
	}
	eventType, _ := payload["type"].(string)

	data, err := json.Marshal(message{
		EventType: events.EventType(eventType),
		Payload:   payload,
		NodeID:    r.nodeID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		telemetry.EventRelayTotal.WithLabelValues("out", "error").Inc()
		r.logger.Error().Err(err).Str("event_type", eventType).Msg("encode event failed")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.transport.Publish(pubCtx, data); err != nil {
		telemetry.EventRelayTotal.WithLabelValues("out", "error").Inc()
		r.logger.Warn().Err(err).Str("event_type", eventType).Msg("publish event failed")
		return
	}
	telemetry.EventRelayTotal.WithLabelValues("out", "success").Inc()
}

func (r *Relay) deliver(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.EventRelayTotal.WithLabelValues("in", "error").Inc()
		r.logger.Warn().Err(err).Msg("decode relayed event failed")
		return
	}
	// Our own messages come back from the broker.
	if msg.NodeID == r.nodeID {
		return
	}
	if _, ok := r.types[msg.EventType]; !ok {
		return
	}
	if msg.Payload == nil {
		msg.Payload = events.Payload{}
	}
	msg.Payload[OriginKey] = msg.NodeID
	r.bus.Publish(msg.EventType, msg.Payload)
	telemetry.EventRelayTotal.WithLabelValues("in", "success").Inc()
}
