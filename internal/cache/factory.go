package cache

import (
	"fmt"

	platformconfig "github.com/qolzam/docstore/internal/platform/config"
)

// NewCache creates a cache instance for the configured backend
func NewCache(config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	switch config.Backend {
	case CacheTypeMemory:
		return NewMemoryCache(config), nil
	case CacheTypeRedis:
		redisCache, err := NewRedisCache(config)
		if err != nil {
			return nil, err
		}
		return redisCache, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCacheType, config.Backend)
	}
}

// ConfigFromPlatform maps platform cache settings onto a CacheConfig. Zero
// values keep the defaults.
func ConfigFromPlatform(pc platformconfig.CacheConfig) *CacheConfig {
	config := DefaultCacheConfig()
	if pc.Backend != "" {
		config.Backend = CacheType(pc.Backend)
	}
	if pc.TTL > 0 {
		config.TTL = pc.TTL
	}
	if pc.Prefix != "" {
		config.Prefix = pc.Prefix
	}
	if pc.MaxMemory > 0 {
		config.MaxMemory = pc.MaxMemory
	}
	if pc.Redis.Address != "" {
		config.Redis.Address = pc.Redis.Address
	}
	config.Redis.Password = pc.Redis.Password
	config.Redis.Database = pc.Redis.Database
	if pc.Redis.PoolSize > 0 {
		config.Redis.PoolSize = pc.Redis.PoolSize
	}
	return config
}
