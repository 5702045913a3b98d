package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	platformconfig "github.com/qolzam/docstore/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(maxMemory int64) *MemoryCache {
	config := DefaultCacheConfig()
	config.MaxMemory = maxMemory
	config.CleanupInterval = 0
	return NewMemoryCache(config)
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := newTestMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	value := []byte("compiled")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("compiled"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, 0.5, stats.HitRatio)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := newTestMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Zero(t, c.Stats().MemoryUsage)
}

func TestMemoryCache_DeleteAndPattern(t *testing.T) {
	c := newTestMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "p:users:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "p:users:b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "p:posts:a", []byte("3"), time.Minute))

	require.NoError(t, c.Delete(ctx, "p:users:a"))
	require.NoError(t, c.DeletePattern(ctx, "p:users:*"))

	assert.Equal(t, int64(1), c.Stats().Keys)
	_, err := c.Get(ctx, "p:posts:a")
	assert.NoError(t, err)
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	// each entry costs len(key) + len(value) + 64 = 66 bytes
	c := newTestMemoryCache(140)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, err := c.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, int64(132), c.Stats().MemoryUsage)
}

func TestMemoryCache_Closed(t *testing.T) {
	c := newTestMemoryCache(0)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrCacheDisabled))
	assert.True(t, errors.Is(c.Set(context.Background(), "k", nil, time.Minute), ErrCacheDisabled))
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	c.Close()

	_, err = NewCache(&CacheConfig{Backend: "disk"})
	assert.True(t, errors.Is(err, ErrInvalidCacheType))

	_, err = NewCache(&CacheConfig{Backend: CacheTypeRedis, Redis: RedisConfig{Address: "127.0.0.1:1"}})
	assert.True(t, errors.Is(err, ErrCacheUnavailable))
}

func TestConfigFromPlatform(t *testing.T) {
	config := ConfigFromPlatform(platformconfig.CacheConfig{
		Backend: "redis",
		TTL:     time.Hour,
		Prefix:  "x:",
		Redis:   platformconfig.RedisConfig{Address: "redis:6379", Database: 2},
	})

	assert.Equal(t, CacheTypeRedis, config.Backend)
	assert.Equal(t, time.Hour, config.TTL)
	assert.Equal(t, "x:", config.Prefix)
	assert.Equal(t, "redis:6379", config.Redis.Address)
	assert.Equal(t, 2, config.Redis.Database)
	assert.Equal(t, 10, config.Redis.PoolSize)

	config = ConfigFromPlatform(platformconfig.CacheConfig{})
	assert.Equal(t, DefaultCacheConfig(), config)
	assert.True(t, config.Backend.IsValid())
}

func TestRedisCache_Live(t *testing.T) {
	address := os.Getenv("DOCSTORE_TEST_REDIS_ADDRESS")
	if address == "" {
		t.Skip("DOCSTORE_TEST_REDIS_ADDRESS not set")
	}
	config := DefaultCacheConfig()
	config.Redis.Address = address

	c, err := NewRedisCache(config)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "docstore:test:k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "docstore:test:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.DeletePattern(ctx, "docstore:test:*"))
	_, err = c.Get(ctx, "docstore:test:k")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}
