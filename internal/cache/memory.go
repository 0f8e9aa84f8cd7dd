package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryCache keeps entries in process memory. It is the zero-dependency
// fallback when no redis instance is configured; contents do not survive a
// restart.
type MemoryCache struct {
	entries map[string]Entry
	mu      sync.RWMutex
	stats   Stats
}

// Stats holds counters about cache performance.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
	}
}

func memKey(namespace, key string) string {
	return namespace + "/" + key
}

func (c *MemoryCache) Get(ctx context.Context, namespace, key string, out interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[memKey(namespace, key)]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return false, nil
	}

	if entry.Expired(time.Now()) {
		delete(c.entries, memKey(namespace, key))
		c.stats.Misses++
		c.updateHitRate()
		return false, nil
	}

	c.stats.Hits++
	c.updateHitRate()

	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration, version string) error {
	entry, err := encodeEntry(value, ttl, version)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memKey(namespace, key)] = entry
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, namespace, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, memKey(namespace, key))
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := namespace + "/"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// GetStats returns a copy of the current counters.
func (c *MemoryCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}

func (c *MemoryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
