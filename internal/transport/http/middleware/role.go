package middleware

import (
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
)

// RequireRole allows access only to tokens whose role is one of allowedRoles.
// It must run after Auth.
func RequireRole(allowedRoles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, domain.KindUnauthorized, "unauthorized")
				return
			}
			for _, role := range allowedRoles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, domain.KindForbidden, "Access denied: insufficient permissions")
		})
	}
}
