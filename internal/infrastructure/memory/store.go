// Package memory is an in-process implementation of the stores and the
// transaction manager. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

var errScopeClosed = errors.New("transaction scope closed")

type profileKey struct {
	accountID string
	role      domain.Role
}

// Store holds every table behind one mutex.
type Store struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	emails    map[string]string
	otpSentAt map[string]time.Time
	profiles  map[profileKey]domain.RoleProfile
	otps      map[string]domain.OneTimeCode
}

func New() *Store {
	return &Store{
		accounts:  make(map[string]domain.Account),
		emails:    make(map[string]string),
		otpSentAt: make(map[string]time.Time),
		profiles:  make(map[profileKey]domain.RoleProfile),
		otps:      make(map[string]domain.OneTimeCode),
	}
}

// op is one write. check runs against committed state and returns
// domain.ErrConditionFailed when the write must not happen.
type op struct {
	check func() error
	apply func()
}

type txKey struct{}

type scope struct {
	mu     sync.Mutex
	ops    []op
	closed bool
}

func (sc *scope) add(o op) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return errScopeClosed
	}
	sc.ops = append(sc.ops, o)
	return nil
}

func (sc *scope) drain() []op {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	ops := sc.ops
	sc.ops = nil
	return ops
}

// WithTx mirrors the DynamoDB manager: writes are buffered, every condition is
// checked against committed state, then all writes apply under one lock.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*scope); ok {
		return fn(ctx)
	}
	sc := &scope{}
	defer sc.drain()
	if err := fn(context.WithValue(ctx, txKey{}, sc)); err != nil {
		return err
	}
	ops := sc.drain()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ops {
		if o.check == nil {
			continue
		}
		if err := o.check(); err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return domain.Errorf(domain.KindConflict, "conflicting write: ConditionalCheckFailed")
			}
			return err
		}
	}
	for _, o := range ops {
		o.apply()
	}
	return nil
}

// exec buffers o in the scope carried by ctx or applies it right away.
func (s *Store) exec(ctx context.Context, o op) error {
	if sc, ok := ctx.Value(txKey{}).(*scope); ok {
		return sc.add(o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.check != nil {
		if err := o.check(); err != nil {
			return err
		}
	}
	o.apply()
	return nil
}
