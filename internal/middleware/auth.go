package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"orienta/internal/auth"
	"orienta/internal/models"
)

type contextKey string

const (
	AdminIDKey    contextKey = "admin_id"
	AdminEmailKey contextKey = "admin_email"
	RequestIDKey  contextKey = "request_id"
)

// AdminLookup resolves the admin behind a token
type AdminLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Admin, error)
}

// AuthMiddleware validates admin JWT tokens
type AuthMiddleware struct {
	authService *auth.Service
	admins      AdminLookup
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *auth.Service, admins AdminLookup) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		admins:      admins,
	}
}

// Authenticate validates the bearer token and adds the admin to the context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := m.authService.ValidateToken(parts[1])
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		// Deactivated admins lose access before their token expires
		if m.admins != nil {
			admin, err := m.admins.GetByID(r.Context(), claims.AdminID)
			if err != nil {
				slog.Error("Failed to load admin", "admin_id", claims.AdminID, "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if admin == nil || !admin.IsActive {
				respondWithError(w, http.StatusUnauthorized, "Admin account is not active")
				return
			}
		}

		ctx := context.WithValue(r.Context(), AdminIDKey, claims.AdminID)
		ctx = context.WithValue(ctx, AdminEmailKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAdminID retrieves the admin ID from the request context
func GetAdminID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(AdminIDKey).(int64)
	return id, ok
}

// GetAdminEmail retrieves the admin email from the request context
func GetAdminEmail(r *http.Request) (string, bool) {
	email, ok := r.Context().Value(AdminEmailKey).(string)
	return email, ok
}

// GetRequestID retrieves the request id assigned by LoggingMiddleware
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDKey).(string)
	return id
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
