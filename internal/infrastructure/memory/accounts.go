package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type AccountRepo struct{ s *Store }

func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	acct := *a
	return r.s.WithTx(ctx, func(ctx context.Context) error {
		return r.s.exec(ctx, op{
			check: func() error {
				if _, ok := r.s.accounts[acct.AccountID]; ok {
					return domain.ErrConditionFailed
				}
				if _, ok := r.s.emails[acct.Email]; ok {
					return domain.ErrConditionFailed
				}
				return nil
			},
			apply: func() {
				r.s.accounts[acct.AccountID] = acct
				r.s.emails[acct.Email] = acct.AccountID
			},
		})
	})
}

func (r *AccountRepo) Get(_ context.Context, accountID string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return &a, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.s.mu.Lock()
	accountID, ok := r.s.emails[domain.NormalizeEmail(email)]
	r.s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, accountID)
}

func (r *AccountRepo) UpgradeRole(ctx context.Context, a *domain.Account, from domain.Role) error {
	next := *a
	err := r.s.exec(ctx, op{
		check: func() error {
			cur, ok := r.s.accounts[next.AccountID]
			if !ok || cur.Role != from {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() {
			cur := r.s.accounts[next.AccountID]
			cur.Role = next.Role
			cur.Name = next.Name
			cur.PasswordHash = next.PasswordHash
			cur.UpdatedAt = next.UpdatedAt
			r.s.accounts[next.AccountID] = cur
		},
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Errorf(domain.KindConflict, "account role changed concurrently")
	}
	return err
}

func (r *AccountRepo) SetVerified(ctx context.Context, accountID string, now time.Time) error {
	return r.update(ctx, accountID, func(a *domain.Account) {
		a.Verified = true
		a.UpdatedAt = now
	})
}

func (r *AccountRepo) SetPasswordHash(ctx context.Context, accountID, hash string, now time.Time) error {
	return r.update(ctx, accountID, func(a *domain.Account) {
		a.PasswordHash = hash
		a.UpdatedAt = now
	})
}

func (r *AccountRepo) ClaimOTPSend(ctx context.Context, accountID string, now time.Time, cooldown time.Duration) error {
	return r.s.exec(ctx, op{
		check: func() error {
			if _, ok := r.s.accounts[accountID]; !ok {
				return domain.ErrConditionFailed
			}
			if last, ok := r.s.otpSentAt[accountID]; ok && last.After(now.Add(-cooldown)) {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() { r.s.otpSentAt[accountID] = now },
	})
}

func (r *AccountRepo) update(ctx context.Context, accountID string, fn func(a *domain.Account)) error {
	err := r.s.exec(ctx, op{
		check: func() error {
			if _, ok := r.s.accounts[accountID]; !ok {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() {
			a := r.s.accounts[accountID]
			fn(&a)
			r.s.accounts[accountID] = a
		},
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return err
}
