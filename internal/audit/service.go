/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit keeps a trail of list definition changes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/eventbus"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/telemetry"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Serve records audited events until ctx ends.
func (s *Service) Serve(ctx context.Context) error {
	sub := s.bus.Subscribe(events.EventListSaved, events.EventListDeleted, events.EventBatchCompleted)
	defer s.bus.Unsubscribe(sub)

	s.logger.Info().Msg("audit service started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return ctx.Err()
		case payload, ok := <-sub:
			if !ok {
				return nil
			}
			s.handle(ctx, payload)
		}
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string { return "audit" }

func (s *Service) handle(ctx context.Context, payload events.Payload) {
	// The instance that made the change records it.
	if _, remote := payload[eventbus.OriginKey]; remote {
		return
	}

	action, ok := actionFor(payload)
	if !ok {
		return
	}

	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}
	if action == models.AuditActionManualBatch {
		entry.ResourceType = "batch"
	} else {
		entry.ResourceType = "list"
		entry.ResourceID, _ = payload["list_id"].(string)
		entry.ResourceName, _ = payload["list_name"].(string)
	}

	for k, v := range payload {
		switch k {
		case "type", "at", "list_id", "list_name", "operation":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// actionFor maps an event onto an audit action. Scheduled batches are
// routine and not audited.
func actionFor(payload events.Payload) (models.AuditAction, bool) {
	eventType, _ := payload["type"].(string)
	switch events.EventType(eventType) {
	case events.EventListSaved:
		if op, _ := payload["operation"].(string); op == string(models.OperationCreate) {
			return models.AuditActionListCreate, true
		}
		return models.AuditActionListUpdate, true
	case events.EventListDeleted:
		return models.AuditActionListDelete, true
	case events.EventBatchCompleted:
		if trigger, _ := payload["trigger"].(string); trigger == string(models.TriggerManual) {
			return models.AuditActionManualBatch, true
		}
	}
	return "", false
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.Timestamp
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	telemetry.AuditEntriesTotal.WithLabelValues(string(entry.Action)).Inc()

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ResourceID *string
	Action     *models.AuditAction
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	// Count total
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100) // Default limit
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
