package service

import (
	"context"
	"log/slog"

	"orienta/internal/models"
	"orienta/internal/repository"
)

// Audit actions recorded for admin mutations
const (
	AuditQuestionnaireCreate  = "questionnaire.create"
	AuditQuestionnaireUpdate  = "questionnaire.update"
	AuditQuestionnaireDelete  = "questionnaire.delete"
	AuditQuestionnairePrimary = "questionnaire.set_primary"
	AuditQuestionnaireImport  = "questionnaire.import"
	AuditVersionCreate        = "version.create"
	AuditVersionClone         = "version.clone"
	AuditVersionPublish       = "version.publish"
	AuditVersionUnpublish     = "version.unpublish"
	AuditVersionDelete        = "version.delete"
	AuditVersionStatus        = "version.status"
	AuditVersionMetadata      = "version.metadata"
	AuditStructureChange      = "structure.change"
	AuditMLRecompute          = "ml.recompute"
	AuditAdminLogin           = "admin.login"
	AuditAdminLoginFailed     = "admin.login.failed"
)

// AuditEntry describes one audited admin action
type AuditEntry struct {
	AdminID   *int64
	Action    string
	Resource  string
	Details   string
	IPAddress string
	UserAgent string
}

// AuditLogPage is one page of audit logs
type AuditLogPage struct {
	Items []models.AuditLog `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// AuditService handles audit logging
type AuditService struct {
	auditRepo *repository.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo *repository.AuditRepository) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
	}
}

// Log creates an audit log entry. Failures are logged and never fail the caller.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) {
	err := s.auditRepo.Create(ctx, &models.AuditLog{
		AdminID:   entry.AdminID,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Details:   entry.Details,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	})
	if err != nil {
		slog.Warn("Failed to write audit log", "action", entry.Action, "resource", entry.Resource, "error", err)
	}
}

// List returns a page of audit logs, newest first
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter, page, limit int) (*AuditLogPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	total, err := s.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, upstream("count audit logs", err)
	}

	logs, err := s.auditRepo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, upstream("list audit logs", err)
	}

	return &AuditLogPage{Items: logs, Total: total, Page: page, Limit: limit}, nil
}
