// Package memory keeps session state in process memory for single-node
// deployments that run without Redis.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/prn-tf/pixtube/internal/repository"
)

// sweepInterval is how often expired entries are purged.
const sweepInterval = time.Minute

// Cache implements repository.Cache with a mutex-guarded map.
// Entries are not shared between processes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// entry is a stored value. A zero deadline never expires.
type entry struct {
	value    []byte
	deadline time.Time
}

func (e entry) alive(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// NewCache returns an empty cache and starts its background sweeper.
// Call Stop to end the sweeper.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !e.alive(now) {
			delete(c.entries, k)
		}
	}
}

// Stop ends the background sweeper. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// deadline converts a TTL into an absolute expiry; ttl <= 0 means none.
func (c *Cache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get returns a copy of the stored value, or repository.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !e.alive(c.now()) {
		return nil, repository.ErrCacheMiss
	}
	return slices.Clone(e.value), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: slices.Clone(value), deadline: c.deadline(ttl)}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && e.alive(c.now()), nil
}

// Expire resets the TTL of a live key. Unknown keys are ignored.
func (c *Cache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.alive(c.now()) {
		return nil
	}
	e.deadline = c.deadline(ttl)
	c.entries[key] = e
	return nil
}

// Len reports how many unexpired entries the cache holds.
func (c *Cache) Len() int {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if e.alive(now) {
			n++
		}
	}
	return n
}

var _ repository.Cache = (*Cache)(nil)
