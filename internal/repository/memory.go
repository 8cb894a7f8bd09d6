package repository

import (
	"context"
	"sync"
	"time"
)

type listEntry struct {
	values    []string
	expiresAt time.Time
}

// MemoryListCache is a process-local ListCache. A zero ttl never expires.
type MemoryListCache struct {
	mu      sync.RWMutex
	entries map[string]listEntry
	now     func() time.Time
}

func NewMemoryListCache() *MemoryListCache {
	return &MemoryListCache{
		entries: make(map[string]listEntry),
		now:     time.Now,
	}
}

func (c *MemoryListCache) GetList(ctx context.Context, key string) ([]string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return append([]string(nil), entry.values...), nil
}

func (c *MemoryListCache) SetList(ctx context.Context, key string, values []string, ttl time.Duration) error {
	entry := listEntry{values: append([]string(nil), values...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryListCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
