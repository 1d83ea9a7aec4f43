package http

import (
	"context"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/otp"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
)

// AccountReader is the minimal interface the auth middleware requires from an account store.
type AccountReader interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// TokenVerifier is the minimal interface the auth middleware requires from a token issuer.
type TokenVerifier interface {
	Verify(purpose domain.TokenPurpose, token string) (*domain.TokenClaims, error)
}

// Deps holds the services and collaborators the router wires into handlers.
type Deps struct {
	Accounts account.Service
	Sessions session.Service
	Auth     auth.Service
	OTP      otp.Service

	AccountRepo AccountReader
	Tokens      TokenVerifier
}
