/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

const (
	AuditActionListCreate   AuditAction = "list.create"
	AuditActionListUpdate   AuditAction = "list.update"
	AuditActionListDelete   AuditAction = "list.delete"
	AuditActionManualBatch  AuditAction = "batch.manual"
	AuditActionIntegrityFix AuditAction = "integrity.repair"
)

// AuditLog records changes to list definitions and operator actions.
type AuditLog struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(64)" json:"resourceType"`
	ResourceID   string         `gorm:"type:varchar(64);index:idx_audit_resource" json:"resourceId,omitempty"`
	ResourceName string         `gorm:"type:varchar(255)" json:"resourceName,omitempty"`
	Details      map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
