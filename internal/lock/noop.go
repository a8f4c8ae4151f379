package lock

import (
	"context"
	"time"
)

// NoOpLocker grants every lock. The admin CLI uses it when Redis is not
// configured, since an in-process lock in a one-shot command guards nothing.
type NoOpLocker struct{}

// NewNoOpLocker creates a new no-op locker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

// Acquire always succeeds unless ctx is done.
func (n *NoOpLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return ctx.Err() == nil, ctx.Err()
}

// AcquireWithRetry always succeeds unless ctx is done.
func (n *NoOpLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return n.Acquire(ctx, key, ttl)
}

func (n *NoOpLocker) Release(ctx context.Context, key string) (bool, error) {
	return true, ctx.Err()
}

func (n *NoOpLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, ctx.Err()
}

// IsHeld always reports false.
func (n *NoOpLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return false, ctx.Err()
}

var _ Locker = (*NoOpLocker)(nil)
