// Package lock serializes moderation and maintenance work that must not run
// twice at once. The server uses an in-process locker unless Redis is
// configured, in which case locks are shared across instances.
package lock

import (
	"context"
	"strconv"
	"time"
)

// Locker grants TTL-bounded exclusive ownership of string keys.
type Locker interface {
	// Acquire takes key for ttl. It reports false when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry calls Acquire up to maxRetries extra times, sleeping
	// retryDelay in between. It reports false if the key stayed busy.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release gives up key. It reports false if this locker did not hold it.
	Release(ctx context.Context, key string) (bool, error)

	// Extend pushes the expiry of a held key to ttl from now.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock binds a Locker to one key and remembers whether it is held.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

func NewLock(locker Locker, key string) *Lock {
	return &Lock{locker: locker, key: key}
}

func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = ok
	return ok, nil
}

// Release is a no-op when the lock is not held.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	_, err := l.locker.Release(ctx, l.key)
	return err
}

// Extend refreshes the TTL. Losing the key marks the lock as not held.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	ok, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	l.held = ok
	return nil
}

func (l *Lock) IsHeld() bool { return l.held }

// Keys builds the lock keys used across the application.
var Keys keyset

type keyset struct{}

// BanAccount guards the ban cascade of one account.
func (keyset) BanAccount(accountID int64) string {
	return "lock:ban:" + strconv.FormatInt(accountID, 10)
}

// ContentGC guards the orphan content sweeper.
func (keyset) ContentGC() string {
	return "lock:gc:content"
}
