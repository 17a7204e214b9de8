/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/sink"
	"github.com/friendsincode/smartlists/internal/store"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Catalog
		&catalog.Item{},
		&catalog.UserDataRecord{},

		// List definitions and owner mappings
		&store.ListRecord{},
		&store.ArtifactRecord{},

		// Materialized playlists and collections
		&sink.ArtifactRecord{},
		&sink.MemberRecord{},

		// Audit trail
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := pruneOrphanMappings(database); err != nil {
		return fmt.Errorf("prune orphan mappings: %w", err)
	}
	return nil
}

// pruneOrphanMappings drops mapping rows whose list no longer exists. Older
// deployments deleted lists without their mappings.
func pruneOrphanMappings(database *gorm.DB) error {
	lists := database.Model(&store.ListRecord{}).Select("id")
	return database.
		Where("list_id NOT IN (?)", lists).
		Delete(&store.ArtifactRecord{}).Error
}
