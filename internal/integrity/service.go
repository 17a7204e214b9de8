/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package integrity finds and repairs drift between list mappings and the
// artifacts they point at.
package integrity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/sink"
	"github.com/friendsincode/smartlists/internal/store"
)

type FindingType string

const (
	// A list mapping names an artifact that no longer exists. The next
	// refresh would recreate it, but until then the list looks healthy.
	FindingMappingMissingArtifact FindingType = "mapping_missing_artifact"
	// An artifact no list maps to, usually left by a delete that kept artifacts.
	FindingUnmappedArtifact FindingType = "unmapped_artifact"
	// Member rows for an artifact that is gone.
	FindingOrphanMembers FindingType = "orphan_members"
)

type Finding struct {
	ID         string         `json:"id"`
	Type       FindingType    `json:"type"`
	Severity   string         `json:"severity"`
	Summary    string         `json:"summary"`
	ListID     string         `json:"listId,omitempty"`
	ResourceID string         `json:"resourceId"`
	Repairable bool           `json:"repairable"`
	Details    map[string]any `json:"details,omitempty"`
}

type Report struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Total       int                 `json:"total"`
	ByType      map[FindingType]int `json:"byType"`
	Findings    []Finding           `json:"findings"`
}

// RepairInput addresses one finding. For mapping findings ResourceID is
// "listID/userID"; otherwise it is the artifact id.
type RepairInput struct {
	Type       FindingType `json:"type"`
	ResourceID string      `json:"resourceId"`
}

type RepairResult struct {
	Changed bool           `json:"changed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Recorder receives an audit entry for every repair that changed state.
type Recorder interface {
	Log(ctx context.Context, entry *models.AuditLog) error
}

type Service struct {
	db     *gorm.DB
	audit  Recorder
	logger zerolog.Logger
}

// NewService creates the service. audit may be nil.
func NewService(db *gorm.DB, audit Recorder, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		audit:  audit,
		logger: logger.With().Str("component", "integrity").Logger(),
	}
}

func (s *Service) Scan(ctx context.Context) (*Report, error) {
	findings := make([]Finding, 0, 16)

	for _, scan := range []func(context.Context) ([]Finding, error){
		s.scanMappingsMissingArtifact,
		s.scanUnmappedArtifacts,
		s.scanOrphanMembers,
	} {
		added, err := scan(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, added...)
	}

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}

	return report, nil
}

// Repair fixes one finding. Repairs are idempotent: a second call reports
// Changed false.
func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	var (
		res RepairResult
		err error
	)
	switch input.Type {
	case FindingMappingMissingArtifact:
		res, err = s.repairMappingMissingArtifact(ctx, input)
	case FindingUnmappedArtifact:
		res, err = s.repairUnmappedArtifact(ctx, input)
	case FindingOrphanMembers:
		res, err = s.repairOrphanMembers(ctx, input)
	default:
		return RepairResult{}, fmt.Errorf("unsupported finding type: %s", input.Type)
	}
	if err != nil || !res.Changed {
		return res, err
	}

	s.logger.Info().Str("type", string(input.Type)).Str("resource_id", input.ResourceID).Msg(res.Message)
	if s.audit != nil {
		details := map[string]any{"finding": string(input.Type), "message": res.Message}
		for k, v := range res.Details {
			details[k] = v
		}
		entry := &models.AuditLog{
			Action:       models.AuditActionIntegrityFix,
			ResourceType: "integrity",
			ResourceID:   input.ResourceID,
			Details:      details,
		}
		if err := s.audit.Log(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record repair in audit log")
		}
	}
	return res, nil
}

func (s *Service) scanMappingsMissingArtifact(ctx context.Context) ([]Finding, error) {
	type row struct {
		ListID     string
		UserID     string
		ArtifactID string
		ListName   string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("smart_list_artifacts m").
		Select("m.list_id, m.user_id, m.artifact_id, l.name AS list_name").
		Joins("LEFT JOIN artifacts a ON a.id = m.artifact_id").
		Joins("LEFT JOIN smart_lists l ON l.id = m.list_id").
		Where("a.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		resource := r.ListID + "/" + r.UserID
		findings = append(findings, Finding{
			ID:         findingID(FindingMappingMissingArtifact, resource),
			Type:       FindingMappingMissingArtifact,
			Severity:   "medium",
			Summary:    "List mapping points at a missing artifact",
			ListID:     r.ListID,
			ResourceID: resource,
			Repairable: true,
			Details: map[string]any{
				"list_name":   r.ListName,
				"user_id":     r.UserID,
				"artifact_id": r.ArtifactID,
			},
		})
	}
	return findings, nil
}

func (s *Service) scanUnmappedArtifacts(ctx context.Context) ([]Finding, error) {
	var rows []sink.ArtifactRecord
	if err := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&store.ArtifactRecord{}).Select("artifact_id")).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingUnmappedArtifact, r.ID),
			Type:       FindingUnmappedArtifact,
			Severity:   "low",
			Summary:    "Artifact is not managed by any list",
			ResourceID: r.ID,
			Repairable: true,
			Details: map[string]any{
				"name":     r.Name,
				"kind":     string(r.Kind),
				"owner_id": r.OwnerID,
			},
		})
	}
	return findings, nil
}

func (s *Service) scanOrphanMembers(ctx context.Context) ([]Finding, error) {
	type row struct {
		ArtifactID string
		Members    int
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("artifact_members m").
		Select("m.artifact_id, COUNT(*) AS members").
		Joins("LEFT JOIN artifacts a ON a.id = m.artifact_id").
		Where("a.id IS NULL").
		Group("m.artifact_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanMembers, r.ArtifactID),
			Type:       FindingOrphanMembers,
			Severity:   "low",
			Summary:    "Member rows reference a deleted artifact",
			ResourceID: r.ArtifactID,
			Repairable: true,
			Details:    map[string]any{"members": r.Members},
		})
	}
	return findings, nil
}

// repairMappingMissingArtifact drops the stale mapping so the next refresh
// creates a fresh artifact.
func (s *Service) repairMappingMissingArtifact(ctx context.Context, input RepairInput) (RepairResult, error) {
	listID, userID, ok := splitMappingID(input.ResourceID)
	if !ok {
		return RepairResult{}, fmt.Errorf("invalid mapping id %q", input.ResourceID)
	}

	var mapping store.ArtifactRecord
	res := s.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).Limit(1).Find(&mapping)
	if res.Error != nil {
		return RepairResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RepairResult{Changed: false, Message: "mapping already removed"}, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&sink.ArtifactRecord{}).Where("id = ?", mapping.ArtifactID).Count(&count).Error; err != nil {
		return RepairResult{}, err
	}
	if count > 0 {
		return RepairResult{Changed: false, Message: "artifact exists; finding already resolved"}, nil
	}

	if err := s.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).Delete(&store.ArtifactRecord{}).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{
		Changed: true,
		Message: "removed stale list mapping",
		Details: map[string]any{"artifact_id": mapping.ArtifactID},
	}, nil
}

func (s *Service) repairUnmappedArtifact(ctx context.Context, input RepairInput) (RepairResult, error) {
	var mapped int64
	if err := s.db.WithContext(ctx).Model(&store.ArtifactRecord{}).Where("artifact_id = ?", input.ResourceID).Count(&mapped).Error; err != nil {
		return RepairResult{}, err
	}
	if mapped > 0 {
		return RepairResult{Changed: false, Message: "artifact is mapped; finding already resolved"}, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("artifact_id = ?", input.ResourceID).Delete(&sink.MemberRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", input.ResourceID).Delete(&sink.ArtifactRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return RepairResult{}, err
	}
	if deleted == 0 {
		return RepairResult{Changed: false, Message: "artifact already removed"}, nil
	}
	return RepairResult{Changed: true, Message: "deleted unmapped artifact"}, nil
}

func (s *Service) repairOrphanMembers(ctx context.Context, input RepairInput) (RepairResult, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&sink.ArtifactRecord{}).Where("id = ?", input.ResourceID).Count(&count).Error; err != nil {
		return RepairResult{}, err
	}
	if count > 0 {
		return RepairResult{Changed: false, Message: "artifact exists; members are not orphaned"}, nil
	}

	res := s.db.WithContext(ctx).Where("artifact_id = ?", input.ResourceID).Delete(&sink.MemberRecord{})
	if res.Error != nil {
		return RepairResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RepairResult{Changed: false, Message: "members already removed"}, nil
	}
	return RepairResult{
		Changed: true,
		Message: "deleted orphan member rows",
		Details: map[string]any{"members": res.RowsAffected},
	}, nil
}

func findingID(t FindingType, resourceID string) string {
	return fmt.Sprintf("%s|%s", t, resourceID)
}

func splitMappingID(id string) (listID, userID string, ok bool) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
