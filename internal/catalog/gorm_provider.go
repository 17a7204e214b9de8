/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/telemetry"
)

// queryChunk bounds IN clause sizes for dialects with parameter limits.
const queryChunk = 500

// UserDataRecord stores one user's state for one catalog item.
type UserDataRecord struct {
	ItemID         string `gorm:"type:varchar(64);primaryKey"`
	UserID         string `gorm:"type:varchar(64);primaryKey"`
	Played         bool
	IsFavorite     bool
	PlayCount      int
	LastPlayedDate *time.Time
}

// TableName pins the gorm table.
func (UserDataRecord) TableName() string { return "catalog_user_data" }

// GormProvider serves catalog queries from the local database.
type GormProvider struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewGormProvider creates a database backed provider.
func NewGormProvider(db *gorm.DB, logger zerolog.Logger) *GormProvider {
	return &GormProvider{db: db, logger: logger.With().Str("component", "catalog").Logger()}
}

// Migrate creates the catalog tables.
func (p *GormProvider) Migrate() error {
	return p.db.AutoMigrate(&Item{}, &UserDataRecord{})
}

// Query implements Provider. Items come back ordered by sort name then id so
// that NoOrder lists are stable between refreshes. Personal data of every
// user is attached since expressions may target users other than userID.
func (p *GormProvider) Query(ctx context.Context, userID string, types []MediaType, recursive bool) ([]*Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog", "catalog.query")
	defer span.End()

	start := time.Now()
	query := p.db.WithContext(ctx).Model(&Item{})
	if len(types) > 0 {
		query = query.Where("type IN ?", types)
	}
	if !recursive {
		query = query.Where("parent_id = ?", "")
	}

	var items []*Item
	if err := query.Order("sort_name ASC, id ASC").Find(&items).Error; err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("query catalog items: %w", err)
	}

	if err := p.attachUserData(ctx, items); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"user_id":    userID,
		"item_count": len(items),
	})
	p.logger.Debug().
		Str("user_id", userID).
		Int("items", len(items)).
		Dur("elapsed", time.Since(start)).
		Msg("catalog query complete")

	return items, nil
}

func (p *GormProvider) attachUserData(ctx context.Context, items []*Item) error {
	byID := make(map[string]*Item, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}

	for start := 0; start < len(ids); start += queryChunk {
		end := min(start+queryChunk, len(ids))
		var records []UserDataRecord
		if err := p.db.WithContext(ctx).Where("item_id IN ?", ids[start:end]).Find(&records).Error; err != nil {
			return fmt.Errorf("query user data: %w", err)
		}
		for _, rec := range records {
			item := byID[rec.ItemID]
			if item == nil {
				continue
			}
			if item.UserData == nil {
				item.UserData = make(map[string]UserData)
			}
			item.UserData[rec.UserID] = UserData{
				Played:         rec.Played,
				IsFavorite:     rec.IsFavorite,
				PlayCount:      rec.PlayCount,
				LastPlayedDate: rec.LastPlayedDate,
			}
		}
	}
	return nil
}
