package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, error)
	// Issue mints an access and refresh token pair for a.
	Issue(a *domain.Account) (*domain.Session, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

type passwordVerifier interface {
	Verify(plain, hash string) (bool, error)
}

type tokenIssuer interface {
	Issue(purpose domain.TokenPurpose, c domain.TokenClaims) (string, error)
	Verify(purpose domain.TokenPurpose, token string) (*domain.TokenClaims, error)
}

type service struct {
	accounts accountStore
	hasher   passwordVerifier
	tokens   tokenIssuer
}

type ServiceDeps struct {
	AccountRepo accountStore
	Hasher      passwordVerifier
	Tokens      tokenIssuer
}

func NewService(deps ServiceDeps) Service {
	return &service{
		accounts: deps.AccountRepo,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*domain.Session, error) {
	a, err := s.accounts.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Errorf(domain.KindNotFound, "User not found")
	}
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, domain.Errorf(domain.KindNotFound, "User not found")
	}
	ok, err := s.hasher.Verify(req.Password, a.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Errorf(domain.KindInvalidCredentials, "Invalid credentials")
	}
	return s.Issue(a)
}

// Refresh reissues the access token only. The refresh token is not rotated.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, domain.Errorf(domain.KindUnauthorized, "Refresh token is required")
	}
	claims, err := s.tokens.Verify(domain.PurposeRefresh, refreshToken)
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.Get(ctx, claims.AccountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if a == nil || a.Email != claims.Email || !a.Active || !a.Verified {
		return nil, domain.Errorf(domain.KindNotFound, "User not found or inactive")
	}
	access, err := s.tokens.Issue(domain.PurposeAccess, accessClaims(a))
	if err != nil {
		return nil, err
	}
	return &domain.Session{AccessToken: access}, nil
}

func (s *service) Issue(a *domain.Account) (*domain.Session, error) {
	c := accessClaims(a)
	access, err := s.tokens.Issue(domain.PurposeAccess, c)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(domain.PurposeRefresh, c)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.Session{AccessToken: access, RefreshToken: refresh, Account: a}, nil
}

func accessClaims(a *domain.Account) domain.TokenClaims {
	return domain.TokenClaims{AccountID: a.AccountID, Email: a.Email, Role: a.Role}
}
