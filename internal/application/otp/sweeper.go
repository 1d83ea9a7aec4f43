package otp

import (
	"context"
	"log/slog"
	"time"
)

type expiredStore interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically deletes expired code records. Lookups already ignore
// expired records; the sweep only keeps the table from growing.
type Sweeper struct {
	store    expiredStore
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store expiredStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the number of deleted records.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		slog.Error("sweep expired otp records", "deleted", n, "err", err)
		return n
	}
	if n > 0 {
		slog.Info("swept expired otp records", "deleted", n)
	}
	return n
}
