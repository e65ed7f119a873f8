// Package ratelimit provides fixed-window counters shared across requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RedisLimiter counts with INCR and starts the window on the first hit, so every
// API instance sees the same counter.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	key = l.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	// A key without expiry was just created, or lost its PEXPIRE to a crash.
	// Plain PEXPIRE keeps this working on servers older than Redis 7.
	retry := ttl.Val()
	if retry < 0 {
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			return Decision{}, err
		}
		retry = window
	}

	count := incr.Val()
	if count <= int64(limit) {
		return Decision{Allowed: true, Count: count}, nil
	}
	return Decision{Allowed: false, Count: count, RetryAfter: retry}, nil
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is a process-local Limiter for single-instance and test setups.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

// WithClock replaces the time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		l.windows[key] = w
	}
	w.count++

	if w.count <= int64(limit) {
		return Decision{Allowed: true, Count: w.count}, nil
	}
	return Decision{Allowed: false, Count: w.count, RetryAfter: w.resetAt.Sub(now)}, nil
}
