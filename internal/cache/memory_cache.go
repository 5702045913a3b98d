package cache

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"
)

// cacheItem represents an item in the memory cache
type cacheItem struct {
	value      []byte
	expiration time.Time
	added      int64
}

// MemoryCache implements Cache with a bounded in-process map
type MemoryCache struct {
	items         map[string]*cacheItem
	mutex         sync.RWMutex
	maxMemory     int64
	currentMemory int64
	sequence      int64
	hits          int64
	misses        int64
	evictions     int64
	cleanupDone   chan struct{}
	closed        bool
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(config *CacheConfig) *MemoryCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	cache := &MemoryCache{
		items:       make(map[string]*cacheItem),
		maxMemory:   config.MaxMemory,
		cleanupDone: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go cache.startCleanup(config.CleanupInterval)
	}

	return cache
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil, ErrCacheDisabled
	}

	item, exists := c.items[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrKeyNotFound
	}

	if time.Now().After(item.expiration) {
		atomic.AddInt64(&c.misses, 1)
		c.remove(key, item)
		return nil, ErrKeyNotFound
	}

	atomic.AddInt64(&c.hits, 1)
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a value in cache with expiration
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrCacheDisabled
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.sequence++
	newItem := &cacheItem{
		value:      valueCopy,
		expiration: time.Now().Add(ttl),
		added:      c.sequence,
	}

	if old := c.items[key]; old != nil {
		c.remove(key, old)
	}
	c.items[key] = newItem
	c.currentMemory += itemSize(key, newItem)

	c.evictIfNeeded(key)
	return nil
}

// Delete removes a value from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, exists := c.items[key]; exists {
		c.remove(key, item)
	}
	return nil
}

// DeletePattern removes all keys matching a glob pattern
func (c *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, item := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			c.remove(key, item)
		}
	}
	return nil
}

// Close stops the cleanup goroutine and drops all entries
func (c *MemoryCache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}
	close(c.cleanupDone)
	c.items = make(map[string]*cacheItem)
	c.currentMemory = 0
	c.closed = true
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	active := int64(0)
	for _, item := range c.items {
		if !now.After(item.expiration) {
			active++
		}
	}

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	hitRatio := 0.0
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return CacheStats{
		Hits:        hits,
		Misses:      misses,
		HitRatio:    hitRatio,
		Keys:        active,
		MemoryUsage: c.currentMemory,
		Evictions:   atomic.LoadInt64(&c.evictions),
	}
}

func (c *MemoryCache) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.cleanupDone:
			return
		}
	}
}

func (c *MemoryCache) cleanupExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			c.remove(key, item)
		}
	}
}

// evictIfNeeded drops expired entries, then the oldest ones, until the cache
// fits maxMemory. keep is never evicted.
func (c *MemoryCache) evictIfNeeded(keep string) {
	if c.maxMemory <= 0 || c.currentMemory <= c.maxMemory {
		return
	}

	now := time.Now()
	for key, item := range c.items {
		if key != keep && now.After(item.expiration) {
			c.remove(key, item)
			atomic.AddInt64(&c.evictions, 1)
		}
	}

	for c.currentMemory > c.maxMemory {
		oldestKey := ""
		var oldest *cacheItem
		for key, item := range c.items {
			if key != keep && (oldest == nil || item.added < oldest.added) {
				oldestKey, oldest = key, item
			}
		}
		if oldest == nil {
			return
		}
		c.remove(oldestKey, oldest)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *MemoryCache) remove(key string, item *cacheItem) {
	delete(c.items, key)
	c.currentMemory -= itemSize(key, item)
}

// itemSize estimates memory usage: key + value + overhead
func itemSize(key string, item *cacheItem) int64 {
	return int64(len(key) + len(item.value) + 64)
}
