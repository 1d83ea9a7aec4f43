package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type OTPRepo struct{ s *Store }

func (s *Store) OTPs() *OTPRepo { return &OTPRepo{s: s} }

func (r *OTPRepo) Create(ctx context.Context, c *domain.OneTimeCode) error {
	rec := *c
	return r.s.exec(ctx, op{
		check: func() error {
			if _, ok := r.s.otps[rec.OTPID]; ok {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() { r.s.otps[rec.OTPID] = rec },
	})
}

func (r *OTPRepo) Get(_ context.Context, otpID string) (*domain.OneTimeCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.otps[otpID]
	if !ok {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	return &c, nil
}

func (r *OTPRepo) DeleteUnusedByAccount(ctx context.Context, accountID string) error {
	r.s.mu.Lock()
	var ids []string
	for id, c := range r.s.otps {
		if c.AccountID == accountID && !c.Used {
			ids = append(ids, id)
		}
	}
	r.s.mu.Unlock()
	for _, id := range ids {
		id := id
		if err := r.s.exec(ctx, op{apply: func() { delete(r.s.otps, id) }}); err != nil {
			return err
		}
	}
	return nil
}

// FindLatestByEmail returns the newest unexpired record for email, used or not.
func (r *OTPRepo) FindLatestByEmail(_ context.Context, email string, now time.Time) (*domain.OneTimeCode, error) {
	email = domain.NormalizeEmail(email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *domain.OneTimeCode
	for _, c := range r.s.otps {
		if c.Email != email || !c.ExpiresAt.After(now) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) ||
			(c.CreatedAt.Equal(best.CreatedAt) && c.OTPID > best.OTPID) {
			c := c
			best = &c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	return best, nil
}

// IncrementAttempts adds one attempt to an unused record below max. Reaching
// max also sets used.
func (r *OTPRepo) IncrementAttempts(_ context.Context, otpID string, max int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.otps[otpID]
	if !ok || c.Used || c.Attempts >= max {
		return 0, domain.ErrConditionFailed
	}
	c.Attempts++
	if c.Attempts >= max {
		c.Used = true
	}
	r.s.otps[otpID] = c
	return c.Attempts, nil
}

func (r *OTPRepo) MarkUsed(ctx context.Context, otpID string) error {
	return r.s.exec(ctx, op{
		check: func() error {
			if _, ok := r.s.otps[otpID]; !ok {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() {
			c := r.s.otps[otpID]
			c.Used = true
			r.s.otps[otpID] = c
		},
	})
}

func (r *OTPRepo) ConsumeIfUnused(_ context.Context, otpID string, max int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.otps[otpID]
	if !ok || c.Used || c.Attempts >= max {
		return false, nil
	}
	c.Used = true
	r.s.otps[otpID] = c
	return true, nil
}

func (r *OTPRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, c := range r.s.otps {
		if c.ExpiresAt.Before(before) {
			delete(r.s.otps, id)
			n++
		}
	}
	return n, nil
}

// CountUsable returns how many usable records the account has at now.
func (r *OTPRepo) CountUsable(accountID string, now time.Time) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.otps {
		if c.AccountID == accountID && c.Usable(now) {
			n++
		}
	}
	return n
}
