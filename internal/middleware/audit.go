package middleware

import (
	"context"
	"net/http"

	"orienta/internal/service"
)

// AuditLogger records admin actions
type AuditLogger interface {
	Log(ctx context.Context, entry service.AuditEntry)
}

// AuditMiddleware logs admin mutations once they succeed
type AuditMiddleware struct {
	audit AuditLogger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(audit AuditLogger) *AuditMiddleware {
	return &AuditMiddleware{audit: audit}
}

// Log records action for every 2xx response of next. The resource is the request path.
func (m *AuditMiddleware) Log(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, ok := w.(*responseWriter)
			if !ok {
				rec = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			}

			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}

			var adminID *int64
			if id, ok := GetAdminID(r); ok {
				adminID = &id
			}

			m.audit.Log(r.Context(), service.AuditEntry{
				AdminID:   adminID,
				Action:    action,
				Resource:  r.URL.Path,
				Details:   r.Method,
				IPAddress: getIP(r),
				UserAgent: r.UserAgent(),
			})
		})
	}
}
