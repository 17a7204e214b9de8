/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/smartlists/internal/models"
)

// ListRecord persists one list definition. Definition holds the spec as
// JSON without its artifact mapping.
type ListRecord struct {
	ID         string          `gorm:"type:varchar(64);primaryKey"`
	Name       string          `gorm:"type:varchar(255);index"`
	Kind       models.ListKind `gorm:"type:varchar(16)"`
	Enabled    bool            `gorm:"index"`
	Definition string          `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName pins the gorm table.
func (ListRecord) TableName() string { return "smart_lists" }

// ArtifactRecord maps one owner of a list to their artifact.
type ArtifactRecord struct {
	ListID     string `gorm:"type:varchar(64);primaryKey"`
	UserID     string `gorm:"type:varchar(64);primaryKey"`
	ArtifactID string `gorm:"type:varchar(64)"`
	UpdatedAt  time.Time
}

// TableName pins the gorm table.
func (ArtifactRecord) TableName() string { return "smart_list_artifacts" }

// GormStore is the persistence store for list specs.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store over db.
func New(db *gorm.DB, logger zerolog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger.With().Str("component", "store").Logger()}
}

// Migrate creates the store tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&ListRecord{}, &ArtifactRecord{})
}

// Save replaces a spec atomically. Mapping entries in spec.Artifacts are
// upserted; entries it omits are kept, so a stale copy never drops ids
// recorded by a concurrent refresh.
func (s *GormStore) Save(ctx context.Context, spec *models.ListSpec) error {
	if spec == nil || spec.ID == "" {
		return errors.New("save: list id is required")
	}
	now := time.Now().UTC()
	def := spec.Clone()
	def.Artifacts = nil
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode list %s: %w", spec.ID, err)
	}

	rec := ListRecord{
		ID:         spec.ID,
		Name:       spec.Name,
		Kind:       spec.Kind,
		Enabled:    spec.Enabled,
		Definition: string(body),
		CreatedAt:  def.CreatedAt,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "enabled", "definition", "updated_at"}),
		}).Create(&rec).Error; err != nil {
			return err
		}
		for user, artifactID := range spec.Artifacts {
			if artifactID == "" {
				continue
			}
			if err := upsertArtifact(tx, spec.ID, user, artifactID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save list %s: %w", spec.ID, err)
	}
	spec.CreatedAt = def.CreatedAt
	spec.UpdatedAt = now
	return nil
}

// Get loads a spec with its artifact mapping.
func (s *GormStore) Get(ctx context.Context, id string) (*models.ListSpec, bool, error) {
	var rec ListRecord
	// Find with Limit keeps misses out of the gorm error log.
	res := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("load list %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	specs, err := s.hydrate(ctx, []ListRecord{rec})
	if err != nil {
		return nil, false, err
	}
	return specs[0], true, nil
}

// List returns every stored spec ordered by name.
func (s *GormStore) List(ctx context.Context) ([]*models.ListSpec, error) {
	var recs []ListRecord
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}
	return s.hydrate(ctx, recs)
}

func (s *GormStore) hydrate(ctx context.Context, recs []ListRecord) ([]*models.ListSpec, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	var mappings []ArtifactRecord
	if err := s.db.WithContext(ctx).Where("list_id IN ?", ids).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("load artifact mappings: %w", err)
	}
	byList := make(map[string]models.ArtifactMapping, len(recs))
	for _, m := range mappings {
		if byList[m.ListID] == nil {
			byList[m.ListID] = models.ArtifactMapping{}
		}
		byList[m.ListID][m.UserID] = m.ArtifactID
	}

	out := make([]*models.ListSpec, 0, len(recs))
	for _, rec := range recs {
		spec, err := Normalize([]byte(rec.Definition))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", rec.ID, err)
		}
		spec.Artifacts = byList[rec.ID]
		if spec.Artifacts == nil {
			spec.Artifacts = models.ArtifactMapping{}
		}
		out = append(out, spec)
	}
	return out, nil
}

// Delete removes a spec and its mapping. Unknown ids are not an error.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", id).Delete(&ArtifactRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&ListRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}
	return nil
}

// SetArtifact records the artifact created for an owner. It is a no-op for
// lists deleted in the meantime.
func (s *GormStore) SetArtifact(ctx context.Context, listID, userID, artifactID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ListRecord{}).Where("id = ?", listID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		return upsertArtifact(tx, listID, userID, artifactID)
	})
	if err != nil {
		return fmt.Errorf("record artifact for %s/%s: %w", listID, userID, err)
	}
	return nil
}

// ClearArtifact forgets an owner's artifact.
func (s *GormStore) ClearArtifact(ctx context.Context, listID, userID string) error {
	err := s.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).Delete(&ArtifactRecord{}).Error
	if err != nil {
		return fmt.Errorf("clear artifact for %s/%s: %w", listID, userID, err)
	}
	return nil
}

func upsertArtifact(tx *gorm.DB, listID, userID, artifactID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "list_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"artifact_id", "updated_at"}),
	}).Create(&ArtifactRecord{ListID: listID, UserID: userID, ArtifactID: artifactID, UpdatedAt: time.Now().UTC()}).Error
}
