package api

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryRateLimiter_Burst(t *testing.T) {
	rl := newMemoryRateLimiter(0.001, 3, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "a"), "request %d", i)
	}
	assert.False(t, rl.Allow(ctx, "a"))
	assert.True(t, rl.Allow(ctx, "b"))
}

func TestMemoryRateLimiter_BoundedClients(t *testing.T) {
	rl := newMemoryRateLimiter(1, 1, 5)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rl.Allow(ctx, fmt.Sprintf("client-%d", i))
	}
	assert.Equal(t, 5, rl.Clients())

	require.NoError(t, rl.Close())
	assert.Equal(t, 0, rl.Clients())
}

func TestMemoryRateLimiter_Defaults(t *testing.T) {
	rl := newMemoryRateLimiter(1, 0, 0)
	assert.Equal(t, 1, rl.burst)
	assert.True(t, rl.Allow(context.Background(), "a"))
}

func setupRedisLimiter(t *testing.T, rps float64, burst int, window time.Duration) (*redisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rl := newRedisRateLimiter(client, rps, burst, window, newMemoryRateLimiter(rps, burst, 10), zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() {
		_ = rl.Close()
	})
	return rl, mr
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 0.125, 1, 8*time.Minute)
	ctx := context.Background()

	// 60 requests per window plus burst
	require.Equal(t, int64(61), rl.limit)

	for i := int64(0); i < rl.limit; i++ {
		require.True(t, rl.Allow(ctx, "a"), "request %d", i)
	}
	assert.False(t, rl.Allow(ctx, "a"))
	assert.True(t, rl.Allow(ctx, "b"))

	key := rl.windowKey("a", time.Now())
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestRedisRateLimiter_WindowExpiry(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 0, 1, time.Second)
	ctx := context.Background()

	require.True(t, rl.Allow(ctx, "a"))
	require.False(t, rl.Allow(ctx, "a"))

	mr.FastForward(3 * time.Second)
	time.Sleep(1100 * time.Millisecond)
	assert.True(t, rl.Allow(ctx, "a"))
}

func TestRedisRateLimiter_FallsBackToMemory(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 0.001, 2, time.Minute)
	ctx := context.Background()
	mr.Close()

	assert.True(t, rl.Allow(ctx, "a"))
	assert.True(t, rl.Allow(ctx, "a"))
	assert.False(t, rl.Allow(ctx, "a"))
}

func TestNewRateLimiter_SelectsBackend(t *testing.T) {
	cfg := testConfig()
	logger := zaptest.NewLogger(t).Sugar()

	rl := NewRateLimiter(cfg, logger)
	_, ok := rl.(*memoryRateLimiter)
	assert.True(t, ok)
	require.NoError(t, rl.Close())

	mr := miniredis.RunT(t)
	cfg.Server.RateLimit.Redis.Enabled = true
	cfg.Server.RateLimit.Redis.Addr = mr.Addr()
	rl = NewRateLimiter(cfg, logger)
	_, ok = rl.(*redisRateLimiter)
	assert.True(t, ok)
	assert.True(t, rl.Allow(context.Background(), "a"))
	require.NoError(t, rl.Close())
}
