/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/smartlists/internal/events"
)

// defaultEventTypes are streamed when the client names none.
var defaultEventTypes = []events.EventType{
	events.EventRefreshStarted,
	events.EventRefreshProgress,
	events.EventRefreshCompleted,
	events.EventBatchStarted,
	events.EventBatchCompleted,
	events.EventListSaved,
	events.EventListDeleted,
}

// handleEvents streams refresh events over a websocket.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	// Reads are only needed to observe the client closing.
	ctx := conn.CloseRead(r.Context())

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = defaultEventTypes
	}
	sub := a.bus.Subscribe(eventTypes...)
	defer a.bus.Unsubscribe(sub)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "shutting down")
				return
			}
			if err := writeEvent(ctx, conn, payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, payload events.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}
