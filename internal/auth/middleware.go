package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sungwon/wa-commerce/internal/metrics"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "role"
)

// SubjectFromContext returns the authenticated token subject, or "".
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

// RoleFromContext returns the authenticated role, or "".
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

// WithIdentity returns ctx carrying an authenticated subject and role.
func WithIdentity(ctx context.Context, subject, role string) context.Context {
	ctx = context.WithValue(ctx, subjectKey, subject)
	return context.WithValue(ctx, roleKey, role)
}

func reject(w http.ResponseWriter, status int, reason, message string) {
	metrics.APIAuthFailuresTotal.WithLabelValues(reason).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}` + "\n"))
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWTAuth validates Bearer tokens issued by jwtService and stores the
// subject and role in the request context.
func JWTAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				reject(w, http.StatusUnauthorized, "missing", "authorization header required")
				return
			}
			token, ok := bearerToken(header)
			if !ok {
				reject(w, http.StatusUnauthorized, "malformed", "expected Bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				reject(w, http.StatusUnauthorized, "invalid", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Subject, claims.Role)))
		})
	}
}
