package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
)

type contextKey string

const claimsKey contextKey = "claims"

type accessVerifier interface {
	Verify(purpose domain.TokenPurpose, token string) (*domain.TokenClaims, error)
}

type accountLookup interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// Auth validates the access token from the Authorization header, with or
// without the Bearer prefix, and rejects tokens whose account is gone,
// inactive or now registered under another email. Claims are injected into
// the request context.
func Auth(tokens accessVerifier, accounts accountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, domain.KindUnauthorized, "Token not found")
				return
			}
			claims, err := tokens.Verify(domain.PurposeAccess, raw)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, domain.KindOf(err), err.Error())
				return
			}
			a, err := accounts.Get(r.Context(), claims.AccountID)
			if errors.Is(err, domain.ErrNotFound) || (err == nil && a.Email != claims.Email) {
				writeJSONError(w, http.StatusNotFound, domain.KindNotFound, "User not found")
				return
			}
			if err != nil {
				slog.Error("auth account lookup", "account_id", claims.AccountID, "err", err)
				writeJSONError(w, http.StatusInternalServerError, domain.KindUnknown, "internal server error")
				return
			}
			if !a.Active {
				writeJSONError(w, http.StatusForbidden, domain.KindForbidden, "User is not active")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts access token claims from the request context.
func ClaimsFromContext(ctx context.Context) (*domain.TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.TokenClaims)
	return c, ok
}
