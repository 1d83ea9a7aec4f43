package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

const (
	forgotPasswordMessage = "If an account exists with this email, a password reset link has been sent."
	resetPasswordMessage  = "Password reset successfully. Please login with your new password."
)

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type Service interface {
	VerifyEmail(ctx context.Context, token string) (*domain.Session, error)
	// ForgotPassword returns the same message whether or not the account exists.
	ForgotPassword(ctx context.Context, email string) string
	// ResetPassword does not revoke tokens issued before the reset.
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	SetVerified(ctx context.Context, accountID string, now time.Time) error
	SetPasswordHash(ctx context.Context, accountID, hash string, now time.Time) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

type tokenIssuer interface {
	Issue(purpose domain.TokenPurpose, c domain.TokenClaims) (string, error)
	Verify(purpose domain.TokenPurpose, token string) (*domain.TokenClaims, error)
}

type sessionIssuer interface {
	Issue(a *domain.Account) (*domain.Session, error)
}

type resetMailer interface {
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, e domain.AccountEvent) error
}

type service struct {
	accounts accountStore
	hasher   passwordHasher
	tokens   tokenIssuer
	sessions sessionIssuer
	mailer   resetMailer
	events   eventPublisher
	now      func() time.Time
}

type ServiceDeps struct {
	AccountRepo accountStore
	Hasher      passwordHasher
	Tokens      tokenIssuer
	Sessions    sessionIssuer
	Mailer      resetMailer
	Events      eventPublisher
	Now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		accounts: deps.AccountRepo,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		mailer:   deps.Mailer,
		events:   deps.Events,
		now:      now,
	}
}

func (s *service) VerifyEmail(ctx context.Context, token string) (*domain.Session, error) {
	claims, err := s.tokens.Verify(domain.PurposeEmailVerification, token)
	if err != nil {
		return nil, err
	}
	a, err := s.load(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !a.Verified {
		now := s.now().UTC()
		if err := s.accounts.SetVerified(ctx, a.AccountID, now); err != nil {
			return nil, err
		}
		a.Verified = true
		a.UpdatedAt = now
		if err := s.events.Publish(ctx, domain.AccountEvent{
			Type:       domain.EventAccountVerified,
			AccountID:  a.AccountID,
			Email:      a.Email,
			Role:       a.Role,
			OccurredAt: now,
		}); err != nil {
			slog.Warn("publish account event", "type", domain.EventAccountVerified, "account_id", a.AccountID, "err", err)
		}
	}
	return s.sessions.Issue(a)
}

func (s *service) ForgotPassword(ctx context.Context, email string) string {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("forgot password lookup", "err", err)
		}
		return forgotPasswordMessage
	}
	if !a.Active {
		return forgotPasswordMessage
	}
	token, err := s.tokens.Issue(domain.PurposePasswordReset, domain.TokenClaims{
		AccountID: a.AccountID,
		Email:     a.Email,
		Purpose:   domain.PurposePasswordReset,
	})
	if err != nil {
		slog.Error("issue password reset token", "account_id", a.AccountID, "err", err)
		return forgotPasswordMessage
	}
	if err := s.mailer.SendPasswordReset(ctx, a.Email, a.Name, token); err != nil {
		slog.Warn("send password reset email", "account_id", a.AccountID, "email", a.Email, "err", err)
	}
	return forgotPasswordMessage
}

func (s *service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	claims, err := s.tokens.Verify(domain.PurposePasswordReset, token)
	if err != nil {
		return "", err
	}
	if claims.Purpose != domain.PurposePasswordReset {
		return "", domain.Errorf(domain.KindTokenInvalid, "Invalid token")
	}
	a, err := s.load(ctx, claims)
	if err != nil {
		return "", err
	}
	if !a.Active {
		return "", domain.Errorf(domain.KindNotFound, "User not found")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.accounts.SetPasswordHash(ctx, a.AccountID, hash, s.now().UTC()); err != nil {
		return "", err
	}
	return resetPasswordMessage, nil
}

// load returns the account named by the token, which must still carry the
// token's email.
func (s *service) load(ctx context.Context, claims *domain.TokenClaims) (*domain.Account, error) {
	a, err := s.accounts.Get(ctx, claims.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Errorf(domain.KindNotFound, "User not found")
	}
	if err != nil {
		return nil, err
	}
	if a.Email != domain.NormalizeEmail(claims.Email) {
		return nil, domain.Errorf(domain.KindNotFound, "User not found")
	}
	return a, nil
}
