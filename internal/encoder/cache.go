package encoder

import (
	"slices"
	"sync"
	"time"
)

// embeddingCache is a TTL cache of vectors with a fixed capacity. When full
// it evicts the entry closest to expiry.
type embeddingCache struct {
	items    map[string]cachedEmbedding
	capacity int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
}

type cachedEmbedding struct {
	vector   []float32
	expireAt time.Time
}

func newEmbeddingCache(capacity int, ttl time.Duration) *embeddingCache {
	return &embeddingCache{
		items:    make(map[string]cachedEmbedding),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// get returns a copy of the cached vector.
func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || !c.now().Before(item.expireAt) {
		return nil, false
	}
	return slices.Clone(item.vector), true
}

func (c *embeddingCache) put(key string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		c.evictLocked(now)
	}
	c.items[key] = cachedEmbedding{vector: slices.Clone(v), expireAt: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the oldest one if none has expired.
func (c *embeddingCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	expired := false

	for k, item := range c.items {
		if !now.Before(item.expireAt) {
			delete(c.items, k)
			expired = true
			continue
		}
		if oldestKey == "" || item.expireAt.Before(oldest) {
			oldestKey, oldest = k, item.expireAt
		}
	}
	if !expired && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *embeddingCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
