package main

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"orienta/internal/handlers"
	"orienta/internal/middleware"
	"orienta/internal/service"
)

type routeHandlers struct {
	auth          *handlers.AuthHandler
	audit         *handlers.AuditHandler
	questionnaire *handlers.QuestionnaireHandler
	version       *handlers.VersionHandler
	structure     *handlers.StructureHandler
	dynamic       *handlers.DynamicHandler
	report        *handlers.ReportHandler
	ml            *handlers.MLHandler
	health        *handlers.HealthHandler
}

func registerRoutes(mux *http.ServeMux, h *routeHandlers, authMw *middleware.AuthMiddleware, auditMw *middleware.AuditMiddleware) {
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMw.Authenticate(fn)
	}
	audited := func(action string, fn http.HandlerFunc) http.Handler {
		return authMw.Authenticate(auditMw.Log(action)(fn))
	}

	// Public routes
	mux.HandleFunc("POST /api/v1/auth/login", h.auth.Login)
	mux.HandleFunc("GET /api/v1/health", h.health.Health)
	mux.HandleFunc("GET /health", h.health.Health)
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// Student routes
	mux.HandleFunc("GET /api/v1/dynamic/questionnaires/{code}", h.dynamic.GetForm)
	mux.HandleFunc("POST /api/v1/dynamic/questionnaires/{code}/save", h.dynamic.Save)
	mux.HandleFunc("POST /api/v1/dynamic/questionnaires/{code}/finalize", h.dynamic.Finalize)
	mux.HandleFunc("GET /api/v1/dynamic/questionnaires/{code}/mine", h.dynamic.Mine)
	mux.HandleFunc("GET /api/v1/dynamic/overview", h.dynamic.Overview)
	mux.HandleFunc("POST /api/v1/dynamic/users", h.dynamic.RegisterUser)

	mux.Handle("GET /api/v1/auth/me", admin(h.auth.Me))

	// Questionnaires
	mux.Handle("GET /api/v1/questionnaires", admin(h.questionnaire.List))
	mux.Handle("POST /api/v1/questionnaires", audited(service.AuditQuestionnaireCreate, h.questionnaire.Create))
	mux.Handle("GET /api/v1/questionnaires/{code}", admin(h.questionnaire.Get))
	mux.Handle("PATCH /api/v1/questionnaires/{code}", audited(service.AuditQuestionnaireUpdate, h.questionnaire.Update))
	mux.Handle("DELETE /api/v1/questionnaires/{code}", audited(service.AuditQuestionnaireDelete, h.questionnaire.Delete))
	mux.Handle("POST /api/v1/questionnaires/{code}/new-version", audited(service.AuditVersionCreate, h.questionnaire.NewVersion))
	mux.Handle("POST /api/v1/questionnaires/{code}/set-primary", audited(service.AuditQuestionnairePrimary, h.questionnaire.SetPrimary))

	// Versions
	mux.Handle("GET /api/v1/versions/{id}", admin(h.version.Get))
	mux.Handle("PATCH /api/v1/versions/{id}", audited(service.AuditVersionStatus, h.version.SetStatus))
	mux.Handle("DELETE /api/v1/versions/{id}", audited(service.AuditVersionDelete, h.version.Delete))
	mux.Handle("POST /api/v1/versions/{id}/clone", audited(service.AuditVersionClone, h.version.Clone))
	mux.Handle("POST /api/v1/versions/{id}/publish", audited(service.AuditVersionPublish, h.version.Publish))
	mux.Handle("POST /api/v1/versions/{id}/unpublish", audited(service.AuditVersionUnpublish, h.version.Unpublish))
	mux.Handle("PUT /api/v1/versions/{id}/metadata", audited(service.AuditVersionMetadata, h.version.UpdateMetadata))

	// Structure
	mux.Handle("POST /api/v1/versions/{id}/sections", audited(service.AuditStructureChange, h.structure.CreateSection))
	mux.Handle("POST /api/v1/versions/{id}/sections/reorder", audited(service.AuditStructureChange, h.structure.ReorderSections))
	mux.Handle("PUT /api/v1/sections/{id}", audited(service.AuditStructureChange, h.structure.UpdateSection))
	mux.Handle("DELETE /api/v1/sections/{id}", audited(service.AuditStructureChange, h.structure.DeleteSection))
	mux.Handle("POST /api/v1/sections/{id}/questions", audited(service.AuditStructureChange, h.structure.CreateQuestion))
	mux.Handle("PUT /api/v1/questions/{id}", audited(service.AuditStructureChange, h.structure.UpdateQuestion))
	mux.Handle("DELETE /api/v1/questions/{id}", audited(service.AuditStructureChange, h.structure.DeleteQuestion))
	mux.Handle("POST /api/v1/questions/{id}/options", audited(service.AuditStructureChange, h.structure.CreateOption))
	mux.Handle("PUT /api/v1/options/{id}", audited(service.AuditStructureChange, h.structure.UpdateOption))
	mux.Handle("DELETE /api/v1/options/{id}", audited(service.AuditStructureChange, h.structure.DeleteOption))

	// Reports and scoring
	mux.Handle("GET /api/v1/admin/versions/{id}/responses/wide", admin(h.report.Wide))
	mux.Handle("GET /api/v1/admin/versions/{id}/responses/export", admin(h.report.Export))
	mux.Handle("POST /api/v1/admin/versions/{id}/recompute-ml", audited(service.AuditMLRecompute, h.ml.Recompute))
	mux.Handle("GET /api/v1/admin/audit-logs", admin(h.audit.List))
}
