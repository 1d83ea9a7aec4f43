package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/domain"
)

type ProfileRepo struct{ s *Store }

func (s *Store) Profiles() *ProfileRepo { return &ProfileRepo{s: s} }

func (r *ProfileRepo) Create(ctx context.Context, p *domain.RoleProfile) error {
	prof := *p
	key := profileKey{prof.AccountID, prof.Role}
	err := r.s.exec(ctx, op{
		check: func() error {
			if _, ok := r.s.profiles[key]; ok {
				return domain.ErrConditionFailed
			}
			return nil
		},
		apply: func() { r.s.profiles[key] = prof },
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Errorf(domain.KindConflict, "%s profile already exists", prof.Role)
	}
	return err
}

func (r *ProfileRepo) Get(_ context.Context, accountID string, role domain.Role) (*domain.RoleProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[profileKey{accountID, role}]
	if !ok {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}

func (r *ProfileRepo) Exists(ctx context.Context, accountID string, role domain.Role) (bool, error) {
	_, err := r.Get(ctx, accountID, role)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Count returns how many profiles the account owns.
func (r *ProfileRepo) Count(accountID string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k := range r.s.profiles {
		if k.accountID == accountID {
			n++
		}
	}
	return n
}
