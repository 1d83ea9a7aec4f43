package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/go-auth-nosql/internal/pkg/otpcode"
	"github.com/go-auth-nosql/internal/pkg/txn"
)

const sentMessage = "OTP sent to email"

type SendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp" validate:"required,len=6,numeric"`
}

type Service interface {
	// Send issues a fresh code for an unverified account, revoking any unused one.
	Send(ctx context.Context, email string) (string, error)
	// Verify consumes the latest code for email and marks the account verified.
	Verify(ctx context.Context, email, code string) (*domain.Session, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	SetVerified(ctx context.Context, accountID string, now time.Time) error
	ClaimOTPSend(ctx context.Context, accountID string, now time.Time, cooldown time.Duration) error
}

type codeStore interface {
	Create(ctx context.Context, c *domain.OneTimeCode) error
	Get(ctx context.Context, otpID string) (*domain.OneTimeCode, error)
	DeleteUnusedByAccount(ctx context.Context, accountID string) error
	FindLatestByEmail(ctx context.Context, email string, now time.Time) (*domain.OneTimeCode, error)
	IncrementAttempts(ctx context.Context, otpID string, max int) (int, error)
	MarkUsed(ctx context.Context, otpID string) error
	ConsumeIfUnused(ctx context.Context, otpID string, max int) (bool, error)
}

type codeHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

type sessionIssuer interface {
	Issue(a *domain.Account) (*domain.Session, error)
}

type codeMailer interface {
	SendOTP(ctx context.Context, to, name, code string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, e domain.AccountEvent) error
}

type service struct {
	tx          txn.Manager
	accounts    accountStore
	codes       codeStore
	hasher      codeHasher
	sessions    sessionIssuer
	mailer      codeMailer
	events      eventPublisher
	generate    func() (string, error)
	now         func() time.Time
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int
}

type ServiceDeps struct {
	TxManager   txn.Manager
	AccountRepo accountStore
	OTPRepo     codeStore
	Hasher      codeHasher
	Sessions    sessionIssuer
	Mailer      codeMailer
	Events      eventPublisher
	Generate    func() (string, error)
	Now         func() time.Time
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		tx:          deps.TxManager,
		accounts:    deps.AccountRepo,
		codes:       deps.OTPRepo,
		hasher:      deps.Hasher,
		sessions:    deps.Sessions,
		mailer:      deps.Mailer,
		events:      deps.Events,
		generate:    deps.Generate,
		now:         deps.Now,
		ttl:         deps.TTL,
		cooldown:    deps.Cooldown,
		maxAttempts: deps.MaxAttempts,
	}
	if s.generate == nil {
		s.generate = otpcode.New
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = 10 * time.Minute
	}
	if s.cooldown <= 0 {
		s.cooldown = time.Minute
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	return s
}

func (s *service) Send(ctx context.Context, email string) (string, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if a == nil || a.Verified {
		return "", domain.Errorf(domain.KindNotFound, "User not found or already verified")
	}

	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	rec := &domain.OneTimeCode{
		OTPID:     id.New(),
		AccountID: a.AccountID,
		Email:     a.Email,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	// The cooldown claim, the revocation of older codes and the insert commit
	// together, so a concurrent send either sees the claim or fails at commit.
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.ClaimOTPSend(ctx, a.AccountID, now, s.cooldown); err != nil {
			return err
		}
		if err := s.codes.DeleteUnusedByAccount(ctx, a.AccountID); err != nil {
			return err
		}
		return s.codes.Create(ctx, rec)
	})
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrConditionFailed) {
		return "", domain.Errorf(domain.KindRateLimited, "Please wait %s before requesting a new OTP", waitLabel(s.cooldown))
	}
	if err != nil {
		return "", err
	}

	if err := s.mailer.SendOTP(ctx, a.Email, a.Name, code); err != nil {
		slog.Warn("send otp email", "account_id", a.AccountID, "email", a.Email, "err", err)
		return "", fmt.Errorf("send otp email: %w", err)
	}
	return sentMessage, nil
}

func (s *service) Verify(ctx context.Context, email, code string) (*domain.Session, error) {
	now := s.now().UTC()
	rec, err := s.codes.FindLatestByEmail(ctx, email, now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Errorf(domain.KindInvalidOrExpiredCode, "Invalid or expired code")
	}
	if err != nil {
		return nil, err
	}
	if err := s.classify(ctx, rec); err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(code, rec.CodeHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.recordMiss(ctx, rec)
	}

	won, err := s.codes.ConsumeIfUnused(ctx, rec.OTPID, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost to a concurrent consume or to the miss that locked the record.
		return nil, s.reclassify(ctx, rec.OTPID, domain.Errorf(domain.KindAlreadyUsedCode, "Code already used"))
	}
	return s.verifyAccount(ctx, rec.AccountID, now)
}

// classify rejects a record that can no longer be consumed. A record at the
// attempt limit is forced to used before Locked is returned.
func (s *service) classify(ctx context.Context, rec *domain.OneTimeCode) error {
	if rec.Attempts >= s.maxAttempts {
		if !rec.Used {
			if err := s.codes.MarkUsed(ctx, rec.OTPID); err != nil {
				return err
			}
		}
		return lockedErr()
	}
	if rec.Used {
		return domain.Errorf(domain.KindAlreadyUsedCode, "Code already used")
	}
	return nil
}

// recordMiss counts a wrong guess. The store locks the record in the same
// write that reaches the limit.
func (s *service) recordMiss(ctx context.Context, rec *domain.OneTimeCode) error {
	n, err := s.codes.IncrementAttempts(ctx, rec.OTPID, s.maxAttempts)
	if errors.Is(err, domain.ErrConditionFailed) {
		// Another request consumed or locked the record first.
		return s.reclassify(ctx, rec.OTPID, lockedErr())
	}
	if err != nil {
		return err
	}
	if n >= s.maxAttempts {
		return lockedErr()
	}
	return domain.Errorf(domain.KindIncorrectCode, "Incorrect code")
}

// reclassify reloads a record whose conditional write was refused and reports
// why it is closed, or fallback when it still looks open.
func (s *service) reclassify(ctx context.Context, otpID string, fallback error) error {
	cur, err := s.codes.Get(ctx, otpID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Errorf(domain.KindInvalidOrExpiredCode, "Invalid or expired code")
	}
	if err != nil {
		return err
	}
	if err := s.classify(ctx, cur); err != nil {
		return err
	}
	return fallback
}

func (s *service) verifyAccount(ctx context.Context, accountID string, now time.Time) (*domain.Session, error) {
	a, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Errorf(domain.KindNotFound, "User not found")
	}
	if err != nil {
		return nil, err
	}
	if !a.Verified {
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

func lockedErr() error {
	return domain.Errorf(domain.KindLocked, "Too many failed attempts. Request a new OTP.")
}

func waitLabel(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "1 minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
