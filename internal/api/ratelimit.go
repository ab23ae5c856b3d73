package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucket implements a simple token bucket rate limiter
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	buckets    map[string]*tokenBucket
	mu         sync.RWMutex
	capacity   float64
	refillRate float64
	now        func() time.Time
}

// NewMemoryLimiter allows requestsPerMinute per key with bursts up to the same amount.
func NewMemoryLimiter(requestsPerMinute int) *MemoryLimiter {
	capacity := float64(requestsPerMinute)
	return &MemoryLimiter{
		buckets:    make(map[string]*tokenBucket),
		capacity:   capacity,
		refillRate: capacity / 60.0, // tokens per second
		now:        time.Now,
	}
}

// Allow never fails.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.bucket(key).allow(l.now()), nil
}

func (l *MemoryLimiter) bucket(key string) *tokenBucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}
	bucket = newTokenBucket(l.capacity, l.refillRate)
	l.buckets[key] = bucket
	return bucket
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return current`)

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit requests per key in each window.
func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: int64(limit), window: window}
}

// Allow increments the caller's window counter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	n, err := fixedWindowScript.Run(ctx, l.rdb, []string{"devmarket:rl:" + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return n <= l.limit, nil
}
