package handlers

import (
	"net/http"

	"orienta/internal/models"
	"orienta/internal/service"
)

// AuditHandler handles audit log requests
type AuditHandler struct {
	Base
	audit *service.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(base Base, audit *service.AuditService) *AuditHandler {
	return &AuditHandler{Base: base, audit: audit}
}

// List lists audit logs with pagination, newest first
// @Summary List audit logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Param action query string false "Exact action"
// @Param resource query string false "Resource prefix"
// @Success 200 {object} Envelope{data=service.AuditLogPage}
// @Failure 401 {object} Envelope
// @Router /admin/audit-logs [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filter := models.AuditLogFilter{
		Action:   r.URL.Query().Get("action"),
		Resource: r.URL.Query().Get("resource"),
	}

	logs, err := h.audit.List(r.Context(), filter, page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, logs)
}
