// Package memcache is the in-memory degraded mode of the result cache:
// same contract, entries lost on restart.
package memcache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	payload []byte
	created time.Time
}

type MemCache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[string]entry
	now  func() time.Time
}

func New(ttl time.Duration) *MemCache {
	return &MemCache{
		ttl:  ttl,
		data: make(map[string]entry),
		now:  time.Now,
	}
}

func (c *MemCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.created) >= c.ttl {
		// expired entries stay put until the next Put overwrites them
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (c *MemCache) Put(ctx context.Context, key string, payload []byte) error {
	c.mu.Lock()
	c.data[key] = entry{payload: payload, created: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *MemCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *MemCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()
	return nil
}
