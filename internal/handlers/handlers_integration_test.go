package handlers_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/auth"
	"orienta/internal/config"
	"orienta/internal/handlers"
	"orienta/internal/middleware"
	"orienta/internal/models"
	"orienta/internal/repository"
	"orienta/internal/service"
	"orienta/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func newRouter(t *testing.T) (http.Handler, *authFixture) {
	t.Helper()
	db := testutil.SetupPostgres(t)

	questionnaireRepo := repository.NewQuestionnaireRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	structureRepo := repository.NewStructureRepository(db)
	userRepo := repository.NewUserRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	authSvc := auth.NewService(&config.JWTConfig{Secret: "handlers-test", Expiration: time.Hour}, "orienta")
	questionnaires := service.NewQuestionnaireService(db, questionnaireRepo, versionRepo, responseRepo)
	versions := service.NewVersionService(db, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	structure := service.NewStructureService(db, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	responses := service.NewResponseService(db, questionnaireRepo, versionRepo, structureRepo, userRepo, responseRepo)
	reports := service.NewReportService(versionRepo, structureRepo, responseRepo, config.ReportConfig{DefaultPageSize: 50, MaxPageSize: 500})
	audit := service.NewAuditService(auditRepo)

	base := handlers.NewBase(false)
	authH := handlers.NewAuthHandler(base, service.NewAuthService(adminRepo, authSvc), audit)
	questionnaireH := handlers.NewQuestionnaireHandler(base, questionnaires, versions)
	versionH := handlers.NewVersionHandler(base, versions)
	structureH := handlers.NewStructureHandler(base, structure)
	dynamicH := handlers.NewDynamicHandler(base, responses)
	reportH := handlers.NewReportHandler(base, reports)
	auditH := handlers.NewAuditHandler(base, audit)

	authMw := middleware.NewAuthMiddleware(authSvc, adminRepo)
	auditMw := middleware.NewAuditMiddleware(audit)
	protect := func(h http.HandlerFunc) http.Handler { return authMw.Authenticate(h) }
	audited := func(action string, h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(auditMw.Log(action)(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.Handle("POST /api/v1/questionnaires", audited(service.AuditQuestionnaireCreate, questionnaireH.Create))
	mux.Handle("POST /api/v1/questionnaires/{code}/new-version", audited(service.AuditVersionCreate, questionnaireH.NewVersion))
	mux.Handle("POST /api/v1/questionnaires/{code}/set-primary", audited(service.AuditQuestionnairePrimary, questionnaireH.SetPrimary))
	mux.Handle("POST /api/v1/versions/{id}/sections", audited(service.AuditStructureChange, structureH.CreateSection))
	mux.Handle("POST /api/v1/sections/{id}/questions", audited(service.AuditStructureChange, structureH.CreateQuestion))
	mux.Handle("POST /api/v1/versions/{id}/publish", audited(service.AuditVersionPublish, versionH.Publish))
	mux.Handle("DELETE /api/v1/versions/{id}", audited(service.AuditVersionDelete, versionH.Delete))
	mux.Handle("GET /api/v1/admin/versions/{id}/responses/wide", protect(reportH.Wide))
	mux.Handle("GET /api/v1/admin/versions/{id}/responses/export", protect(reportH.Export))
	mux.Handle("GET /api/v1/admin/audit-logs", protect(auditH.List))
	mux.HandleFunc("GET /api/v1/dynamic/questionnaires/{code}", dynamicH.GetForm)
	mux.HandleFunc("POST /api/v1/dynamic/questionnaires/{code}/save", dynamicH.Save)
	mux.HandleFunc("POST /api/v1/dynamic/questionnaires/{code}/finalize", dynamicH.Finalize)
	mux.HandleFunc("GET /api/v1/dynamic/questionnaires/{code}/mine", dynamicH.Mine)
	mux.HandleFunc("GET /api/v1/dynamic/overview", dynamicH.Overview)

	testutil.CreateAdmin(t, db, "admin@example.com", "correct-horse")
	return middleware.LoggingMiddleware(mux), &authFixture{email: "admin@example.com", password: "correct-horse"}
}

type authFixture struct {
	email    string
	password string
}

func TestAdminAndStudentFlow(t *testing.T) {
	router, creds := newRouter(t)

	// Authoring requires a token
	rec, _ := call(t, router, http.MethodPost, "/api/v1/questionnaires", "", map[string]string{"code": "cog", "title": "Cog"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": creds.email, "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := call(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": creds.email, "password": creds.password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login service.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	token := login.Token

	rec, _ = call(t, router, http.MethodPost, "/api/v1/questionnaires", token, map[string]string{"code": "cog", "title": "Cog"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = call(t, router, http.MethodPost, "/api/v1/questionnaires", token, map[string]string{"code": "cog", "title": "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = call(t, router, http.MethodPost, "/api/v1/questionnaires", token, map[string]string{"code": "Bad Code!", "title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = call(t, router, http.MethodPost, "/api/v1/questionnaires/cog/new-version", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var version models.Version
	require.NoError(t, json.Unmarshal(env.Data, &version))

	rec, env = call(t, router, http.MethodPost, fmt.Sprintf("/api/v1/versions/%d/sections", version.ID), token, map[string]string{"title": "Main"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var section models.Section
	require.NoError(t, json.Unmarshal(env.Data, &section))

	for _, q := range []map[string]any{
		{"code": "q1", "text": "Likes math", "type": "boolean", "required": true},
		{"code": "q2", "text": "Comment", "type": "text"},
	} {
		rec, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/v1/sections/%d/questions", section.ID), token, q)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// Students cannot see drafts
	rec, _ = call(t, router, http.MethodGet, "/api/v1/dynamic/questionnaires/cog", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, router, http.MethodPost, fmt.Sprintf("/api/v1/versions/%d/publish", version.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = call(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/versions/%d", version.ID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = call(t, router, http.MethodPost, "/api/v1/questionnaires/cog/set-primary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = call(t, router, http.MethodGet, "/api/v1/dynamic/questionnaires/cog?user_code=A001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var form service.Form
	require.NoError(t, json.Unmarshal(env.Data, &form))
	assert.Equal(t, version.ID, form.Version.ID)
	require.Len(t, form.Version.Sections, 1)

	// Finalize without the required answer
	rec, env = call(t, router, http.MethodPost, "/api/v1/dynamic/questionnaires/cog/finalize", "", map[string]any{
		"user_code": "A001",
		"answers":   map[string]any{"q2": "a, \"quoted\" comment"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Details), `"q1"`)

	rec, _ = call(t, router, http.MethodPost, "/api/v1/dynamic/questionnaires/cog/save", "", map[string]any{
		"user_code": "A001",
		"answers":   map[string]any{"nope": 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = call(t, router, http.MethodPost, "/api/v1/dynamic/questionnaires/cog/finalize", "", map[string]any{
		"user_code": "A001",
		"answers":   map[string]any{"q1": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state service.ResponseState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, models.ResponseFinalized, state.Status)
	assert.Equal(t, 100, state.Progress)

	rec, _ = call(t, router, http.MethodPost, "/api/v1/dynamic/questionnaires/cog/save", "", map[string]any{
		"user_code": "A001",
		"answers":   map[string]any{"q2": "late"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = call(t, router, http.MethodGet, "/api/v1/dynamic/questionnaires/cog/mine?user_code=A001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"finalized"`)

	rec, env = call(t, router, http.MethodGet, "/api/v1/dynamic/overview?user_code=A001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview service.Overview
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	require.NotNil(t, overview.Primary)
	assert.Equal(t, "cog", overview.Primary.Code)

	// Reports
	rec, env = call(t, router, http.MethodGet, fmt.Sprintf("/api/v1/admin/versions/%d/responses/wide?page_size=10", version.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var table struct {
		Total int              `json:"total"`
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &table))
	assert.Equal(t, 1, table.Total)
	require.Len(t, table.Items, 1)
	assert.Equal(t, true, table.Items[0]["q1"])

	rec, _ = call(t, router, http.MethodGet, fmt.Sprintf("/api/v1/admin/versions/%d/responses/wide?status=bogus", version.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, router, http.MethodGet, fmt.Sprintf("/api/v1/admin/versions/%d/responses/export", version.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Contains(t, records[1], `a, "quoted" comment`)
	assert.Contains(t, records[1], "true")

	rec, _ = call(t, router, http.MethodGet, "/api/v1/admin/versions/999999/responses/export", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Successful mutations were audited
	rec, env = call(t, router, http.MethodGet, "/api/v1/admin/audit-logs?action="+service.AuditVersionPublish, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs service.AuditLogPage
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Equal(t, 1, logs.Total)
}
