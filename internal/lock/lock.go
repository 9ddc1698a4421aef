// Package lock provides named mutual exclusion across processes.
//
// Keys are scoped by the caller, for example "billing:subscription:<account>".
// A lock is held until Release or until its TTL lapses, whichever comes first.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotAcquired  = errors.New("lock not acquired")
	errEmptyKey     = errors.New("lock key is empty")
	errNonPosTTL    = errors.New("lock ttl must be positive")
	minPollInterval = 10 * time.Millisecond
	maxPollInterval = 250 * time.Millisecond
)

// Locker grants a single holder per key. TryLock never blocks; the returned
// token must be handed back to Release.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Acquire polls l until the key is granted or wait elapses. The returned
// release func is safe to call once and ignores release failures, since the
// TTL reclaims the key anyway.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	interval := minPollInterval

	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				_ = l.Release(releaseCtx, key, token)
			}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}
		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}
