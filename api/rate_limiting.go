package api

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"cipherd/config"
	"cipherd/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"

	defaultMaxClients  = 10000
	defaultRedisWindow = time.Second
	redisKeyPrefix     = "cipherd:ratelimit:"
	redisOpTimeout     = 100 * time.Millisecond
)

// RateLimiter decides whether a client may make another request
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
	Close() error
}

// NewRateLimiter builds the limiter configured under server.rate_limit.
// With redis enabled the budget is shared across instances; the in-memory
// limiter is always kept as the fallback when Redis is unreachable.
func NewRateLimiter(cfg *config.Config, logger *zap.SugaredLogger) RateLimiter {
	rl := cfg.Server.RateLimit
	mem := newMemoryRateLimiter(rl.RequestsPerSecond, rl.Burst, rl.MaxClients)
	if !rl.Redis.Enabled {
		return mem
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rl.Redis.Addr,
		Password: rl.Redis.Password,
		DB:       rl.Redis.DB,
		PoolSize: 10,
	})
	logger.Infow("Using Redis rate limiter", "addr", rl.Redis.Addr, "window", rl.Redis.Window)
	return newRedisRateLimiter(client, rl.RequestsPerSecond, rl.Burst, rl.Redis.Window, mem, logger)
}

// memoryRateLimiter keeps one token bucket per client. The LRU bounds the
// number of tracked clients; evicted clients start again with a full bucket.
type memoryRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newMemoryRateLimiter(rps float64, burst, maxClients int) *memoryRateLimiter {
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	if burst <= 0 {
		burst = 1
	}
	// lru.New only fails on a non-positive size
	cache, _ := lru.New[string, *rate.Limiter](maxClients)
	return &memoryRateLimiter{
		limiters: cache,
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (m *memoryRateLimiter) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(m.limit, m.burst)
	m.limiters.Add(key, l)
	return l
}

func (m *memoryRateLimiter) Allow(_ context.Context, key string) bool {
	if m.limiter(key).Allow() {
		return true
	}
	metrics.HTTPRateLimited.WithLabelValues(backendMemory).Inc()
	return false
}

// Clients returns the number of tracked clients
func (m *memoryRateLimiter) Clients() int {
	return m.limiters.Len()
}

func (m *memoryRateLimiter) Close() error {
	m.limiters.Purge()
	return nil
}

// redisRateLimiter is a fixed-window counter per client shared across instances
type redisRateLimiter struct {
	client   *redis.Client
	window   time.Duration
	limit    int64
	fallback *memoryRateLimiter
	logger   *zap.SugaredLogger
}

func newRedisRateLimiter(client *redis.Client, rps float64, burst int, window time.Duration, fallback *memoryRateLimiter, logger *zap.SugaredLogger) *redisRateLimiter {
	if window <= 0 {
		window = defaultRedisWindow
	}
	limit := int64(math.Ceil(rps*window.Seconds())) + int64(burst)
	if limit < 1 {
		limit = 1
	}
	return &redisRateLimiter{
		client:   client,
		window:   window,
		limit:    limit,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *redisRateLimiter) windowKey(key string, now time.Time) string {
	return fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, now.UnixNano()/int64(r.window))
}

func (r *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	windowKey := r.windowKey(key, time.Now())
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, r.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnw("Redis rate limiter unavailable, using in-memory limiter", "error", err)
		return r.fallback.Allow(ctx, key)
	}

	if incr.Val() > r.limit {
		metrics.HTTPRateLimited.WithLabelValues(backendRedis).Inc()
		return false
	}
	return true
}

func (r *redisRateLimiter) Close() error {
	_ = r.fallback.Close()
	return r.client.Close()
}
