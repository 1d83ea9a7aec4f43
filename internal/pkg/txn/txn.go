// Package txn runs a function inside an atomic multi-record write scope.
package txn

import "context"

// Manager opens a write scope carried by the context passed to fn. Writes made
// through that context commit together when fn returns nil and are discarded
// otherwise. The scope is closed before WithTx returns.
type Manager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run is WithTx for functions that produce a value. The value is only returned
// when the scope committed.
func Run[T any](ctx context.Context, m Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.WithTx(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
