package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another hit for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NewLimiter returns a Redis fixed-window limiter when a client is available and
// an in-process token bucket otherwise. A non-positive limit disables limiting.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	if limit <= 0 {
		return noopLimiter{}
	}
	if window <= 0 {
		window = time.Minute
	}
	if client == nil {
		return NewTokenBucket(limit, window)
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// RedisLimiter counts hits per key in fixed windows shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// Allow increments the window counter for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// TokenBucket is an in-memory limiter refilling capacity tokens per window.
type TokenBucket struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter allowing capacity hits per window per key.
func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// Allow consumes a token for key if one is available.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: float64(l.capacity) - 1, last: now}
		return true, nil
	}

	refill := now.Sub(b.last).Seconds() / l.window.Seconds() * float64(l.capacity)
	b.tokens += refill
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.last = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}
