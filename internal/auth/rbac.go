package auth

import (
	"net/http"
	"slices"

	"github.com/sungwon/wa-commerce/internal/logger"
)

// RequireRole rejects requests whose authenticated role is not one of roles.
// It must run after JWTAuth; a request without a role gets 401.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" {
				reject(w, http.StatusUnauthorized, "missing", "authentication required")
				return
			}
			if !slices.Contains(roles, role) {
				log := logger.FromContext(r.Context())
				log.Warn().
					Str("subject", SubjectFromContext(r.Context())).
					Str("role", role).
					Str("path", r.URL.Path).
					Msg("admin API access denied")
				reject(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
