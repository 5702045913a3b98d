package cache

import (
	"context"
	"errors"
	"time"
)

// Cache stores compiled query documents keyed by filter text
type Cache interface {
	// Get retrieves a value from cache by key
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache by key
	Delete(ctx context.Context, key string) error

	// DeletePattern removes all keys matching the given pattern
	DeletePattern(ctx context.Context, pattern string) error

	// Close closes the cache connection
	Close() error

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheConfig holds configuration for cache instances
type CacheConfig struct {
	// TTL is the default time-to-live for cache entries
	TTL time.Duration `json:"ttl"`

	// Prefix is added to all cache keys
	Prefix string `json:"prefix"`

	// Backend specifies the cache backend (memory, redis)
	Backend CacheType `json:"backend"`

	// MaxMemory is the maximum memory usage for memory cache (in bytes)
	MaxMemory int64 `json:"max_memory"`

	// CleanupInterval for expired item cleanup
	CleanupInterval time.Duration `json:"cleanup_interval"`

	Redis RedisConfig `json:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	Database int    `json:"database"`
	PoolSize int    `json:"pool_size"`
}

// CacheStats provides cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRatio    float64 `json:"hit_ratio"`
	Keys        int64   `json:"keys"`
	MemoryUsage int64   `json:"memory_usage"`
	Evictions   int64   `json:"evictions"`
}

// Common cache errors
var (
	// ErrKeyNotFound is returned when a key is not found in cache
	ErrKeyNotFound = errors.New("key not found")

	// ErrCacheUnavailable is returned when cache backend is unavailable
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidCacheType is returned when cache type is invalid
	ErrInvalidCacheType = errors.New("invalid cache type")

	// ErrCacheDisabled is returned after the cache is closed
	ErrCacheDisabled = errors.New("cache disabled")
)

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:             15 * time.Minute,
		Prefix:          "docstore:filter:",
		Backend:         CacheTypeMemory,
		MaxMemory:       16 * 1024 * 1024, // 16MB
		CleanupInterval: time.Minute,
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
	}
}

// CacheType represents different cache backend types
type CacheType string

const (
	// CacheTypeMemory represents in-memory cache
	CacheTypeMemory CacheType = "memory"

	// CacheTypeRedis represents Redis cache
	CacheTypeRedis CacheType = "redis"
)

// IsValid checks if the cache type is valid
func (ct CacheType) IsValid() bool {
	switch ct {
	case CacheTypeMemory, CacheTypeRedis:
		return true
	default:
		return false
	}
}
