package repository

import (
	"context"
	"testing"
	"time"

	"wxsync/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisTokenCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisTokenCache(client), mr
}

func TestRedisTokenCache(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	_, err := cache.GetToken(ctx, "op-1", "ww123")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-1", time.Hour))

	token, err := cache.GetToken(ctx, "op-1", "ww123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// key format is part of the contract with ops tooling
	assert.True(t, mr.Exists("wxwork:token:op-1:ww123"))

	// TTL expiry invalidates the token
	mr.FastForward(2 * time.Hour)
	_, err = cache.GetToken(ctx, "op-1", "ww123")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRedisTokenCacheDelete(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-1", time.Hour))
	require.NoError(t, cache.DeleteToken(ctx, "op-1", "ww123"))

	_, err := cache.GetToken(ctx, "op-1", "ww123")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRedisTokenCacheScopedKeys(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-a", time.Hour))
	require.NoError(t, cache.SetToken(ctx, "op-2", "ww123", "tok-b", time.Hour))

	token, err := cache.GetToken(ctx, "op-1", "ww123")
	require.NoError(t, err)
	assert.Equal(t, "tok-a", token)

	token, err = cache.GetToken(ctx, "op-2", "ww123")
	require.NoError(t, err)
	assert.Equal(t, "tok-b", token)
}

func TestMemoryTokenCache(t *testing.T) {
	cache := NewMemoryTokenCache()
	ctx := context.Background()

	_, err := cache.GetToken(ctx, "op-1", "ww123")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-1", time.Hour))

	token, err := cache.GetToken(ctx, "op-1", "ww123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-2", -time.Second))
	_, err = cache.GetToken(ctx, "op-1", "ww123")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestFailoverTokenCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	primary := NewRedisTokenCache(client)
	fallback := NewMemoryTokenCache()
	cache := NewFailoverTokenCache(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww123", "tok-1", time.Hour))

	token, err := cache.GetToken(ctx, "op-1", "ww123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// primary miss stays ErrNotFound, it is not a failure
	_, err = cache.GetToken(ctx, "op-1", "other")
	assert.ErrorIs(t, err, database.ErrNotFound)

	// redis goes down, writes land in the fallback
	mr.Close()

	require.NoError(t, cache.SetToken(ctx, "op-1", "ww999", "tok-fallback", time.Hour))

	token, err = cache.GetToken(ctx, "op-1", "ww999")
	require.NoError(t, err)
	assert.Equal(t, "tok-fallback", token)
}
