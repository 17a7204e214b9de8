/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sink provides a database backed list sink. Hosts with their own
// playlist storage implement reconcile.ListSink directly.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/reconcile"
)

// ErrArtifactNotFound is returned by setters addressing an unknown artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRecord is a playlist or collection materialized by the service.
type ArtifactRecord struct {
	ID          string          `gorm:"type:varchar(36);primaryKey"`
	Kind        models.ListKind `gorm:"type:varchar(16);index"`
	Name        string          `gorm:"type:varchar(255)"`
	OwnerID     string          `gorm:"type:varchar(64);index"`
	Public      bool
	MediaKind   string `gorm:"type:varchar(16)"`
	CoverItemID string `gorm:"type:varchar(64)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the gorm table.
func (ArtifactRecord) TableName() string { return "artifacts" }

// MemberRecord is one ordered entry of an artifact.
type MemberRecord struct {
	ArtifactID string `gorm:"type:varchar(36);primaryKey"`
	Position   int    `gorm:"primaryKey;autoIncrement:false"`
	ItemID     string `gorm:"type:varchar(64);index"`
}

// TableName pins the gorm table.
func (MemberRecord) TableName() string { return "artifact_members" }

// GormSink implements reconcile.ListSink.
type GormSink struct {
	db     *gorm.DB
	logger zerolog.Logger
}

var _ reconcile.ListSink = (*GormSink)(nil)

// New creates a sink over db.
func New(db *gorm.DB, logger zerolog.Logger) *GormSink {
	return &GormSink{db: db, logger: logger.With().Str("component", "sink").Logger()}
}

// Migrate creates the artifact tables.
func (s *GormSink) Migrate() error {
	return s.db.AutoMigrate(&ArtifactRecord{}, &MemberRecord{})
}

// Resolve loads an artifact with its members.
func (s *GormSink) Resolve(ctx context.Context, id string) (reconcile.Artifact, bool, error) {
	var rec ArtifactRecord
	res := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return reconcile.Artifact{}, false, fmt.Errorf("load artifact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return reconcile.Artifact{}, false, nil
	}

	var members []MemberRecord
	if err := s.db.WithContext(ctx).Where("artifact_id = ?", id).Order("position ASC").Find(&members).Error; err != nil {
		return reconcile.Artifact{}, false, fmt.Errorf("load members: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ItemID
	}

	return reconcile.Artifact{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Name:        rec.Name,
		OwnerID:     rec.OwnerID,
		Public:      rec.Public,
		MediaKind:   reconcile.MediaKind(rec.MediaKind),
		MemberIDs:   ids,
		CoverItemID: rec.CoverItemID,
	}, true, nil
}

// Create inserts an artifact and its members in one transaction.
func (s *GormSink) Create(ctx context.Context, req reconcile.CreateRequest) (string, error) {
	rec := ArtifactRecord{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		Public:    req.Public,
		MediaKind: string(req.MediaKind),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return writeMembers(tx, rec.ID, req.MemberIDs)
	})
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	s.logger.Debug().Str("artifact_id", rec.ID).Str("kind", string(rec.Kind)).Int("members", len(req.MemberIDs)).Msg("artifact stored")
	return rec.ID, nil
}

// Rename sets the artifact name.
func (s *GormSink) Rename(ctx context.Context, id, name string) error {
	return s.set(ctx, id, "name", name)
}

// SetVisibility sets the public flag.
func (s *GormSink) SetVisibility(ctx context.Context, id string, public bool) error {
	return s.set(ctx, id, "public", public)
}

// SetMediaKind tags the artifact as audio or video.
func (s *GormSink) SetMediaKind(ctx context.Context, id string, kind reconcile.MediaKind) error {
	return s.set(ctx, id, "media_kind", string(kind))
}

// SetCover records the item whose artwork represents the artifact.
func (s *GormSink) SetCover(ctx context.Context, id, itemID string) error {
	return s.set(ctx, id, "cover_item_id", itemID)
}

// SetMembers replaces the member list atomically.
func (s *GormSink) SetMembers(ctx context.Context, id string, itemIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ArtifactRecord{}).Where("id = ?", id).Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrArtifactNotFound
		}
		if err := tx.Where("artifact_id = ?", id).Delete(&MemberRecord{}).Error; err != nil {
			return err
		}
		return writeMembers(tx, id, itemIDs)
	})
	if err != nil {
		return fmt.Errorf("set members of %s: %w", id, err)
	}
	return nil
}

// Delete removes an artifact and its members. Unknown ids are ignored.
func (s *GormSink) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("artifact_id = ?", id).Delete(&MemberRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&ArtifactRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	return nil
}

func (s *GormSink) set(ctx context.Context, id, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&ArtifactRecord{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s of %s: %w", column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s of %s: %w", column, id, ErrArtifactNotFound)
	}
	return nil
}

func writeMembers(tx *gorm.DB, artifactID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	rows := make([]MemberRecord, len(itemIDs))
	for i, itemID := range itemIDs {
		rows[i] = MemberRecord{ArtifactID: artifactID, Position: i, ItemID: itemID}
	}
	return tx.CreateInBatches(rows, 500).Error
}
