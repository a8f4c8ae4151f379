package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = 30 * time.Second

// MemoryLocker implements Locker inside one process.
// It serializes bans and sweeps for a single server; run Redis when several
// servers share a database.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	stopOnce sync.Once
	stopChan chan struct{}
}

type lockEntry struct {
	expiresAt time.Time
	token     string
}

func (e *lockEntry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// NewMemoryLocker creates a locker and starts its cleanup goroutine. Call Stop to end it.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks:    make(map[string]*lockEntry),
		stopChan: make(chan struct{}),
	}
	go ml.cleanupLoop()
	return ml
}

// Stop ends the cleanup goroutine. Held locks stay valid until they expire.
func (m *MemoryLocker) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *MemoryLocker) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.locks {
		if !entry.live(now) {
			delete(m.locks, key)
		}
	}
}

// Acquire takes the lock unless a live entry exists.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, ok := m.locks[key]; ok && entry.live(now) {
		return false, nil
	}

	m.locks[key] = &lockEntry{
		expiresAt: now.Add(ttl),
		token:     uuid.NewString(),
	}
	return true, nil
}

// AcquireWithRetry calls Acquire up to maxRetries+1 times, waiting retryDelay between attempts.
// It returns false, nil when the lock stayed busy.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil || acquired {
			return acquired, err
		}
		if i == maxRetries {
			break
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return false, nil
}

// Release drops the lock and reports whether a live entry was removed.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		return false, nil
	}
	delete(m.locks, key)
	return entry.live(time.Now()), nil
}

// Extend pushes the expiry of a live lock to now+ttl.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	return true, nil
}

// IsHeld reports whether a live entry exists for key.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

// live returns the entry for key, dropping it when expired. m.mu must be held.
func (m *MemoryLocker) live(key string) (*lockEntry, bool) {
	entry, ok := m.locks[key]
	if !ok {
		return nil, false
	}
	if !entry.live(time.Now()) {
		delete(m.locks, key)
		return nil, false
	}
	return entry, true
}

var _ Locker = (*MemoryLocker)(nil)
