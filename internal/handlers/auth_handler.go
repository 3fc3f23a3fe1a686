package handlers

import (
	"errors"
	"net/http"

	"orienta/internal/middleware"
	"orienta/internal/service"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthHandler handles authentication of the authoring console
type AuthHandler struct {
	Base
	authService *service.AuthService
	audit       *service.AuditService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(base Base, authService *service.AuthService, audit *service.AuditService) *AuthHandler {
	return &AuthHandler{
		Base:        base,
		authService: authService,
		audit:       audit,
	}
}

// Login handles admin login
// @Summary Admin login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Envelope{data=service.LoginResult}
// @Failure 400 {object} Envelope
// @Failure 401 {object} Envelope "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrAdminInactive) {
			h.audit.Log(r.Context(), service.AuditEntry{
				Action:    service.AuditAdminLoginFailed,
				Resource:  "admins",
				Details:   "Failed login attempt for " + req.Email,
				IPAddress: r.RemoteAddr,
				UserAgent: r.UserAgent(),
			})
		}
		h.fail(w, r, err)
		return
	}

	h.audit.Log(r.Context(), service.AuditEntry{
		AdminID:   &result.Admin.ID,
		Action:    service.AuditAdminLogin,
		Resource:  "admins",
		Details:   "Admin logged in",
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})

	h.ok(w, http.StatusOK, result)
}

// Me returns the authenticated admin
// @Summary Current admin
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=models.Admin}
// @Failure 401 {object} Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetAdminID(r)
	if !ok {
		h.message(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	admin, err := h.authService.GetAdmin(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, admin)
}
