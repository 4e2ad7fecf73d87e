// Package ratelimit throttles the capture and upload endpoints per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const defaultPrefix = "shotreview:ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Key joins a route name and client address into a limiter key.
func Key(route, clientIP string) string {
	route = strings.TrimSpace(route)
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return route + ":" + clientIP
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return errors.New("rate limiter requires positive limit and window")
	}
	return nil
}

func slot(now time.Time, window time.Duration) (int64, time.Duration) {
	windowMs := window.Milliseconds()
	nowMs := now.UTC().UnixMilli()
	s := nowMs / windowMs
	retry := time.Duration((s+1)*windowMs-nowMs) * time.Millisecond
	return s, retry
}

// FixedWindowLimiter limits requests per key in a fixed window shared
// through Redis. Redis failures deny the request unless FailOpen is set.
type FixedWindowLimiter struct {
	limit    int
	window   time.Duration
	failOpen bool

	redisClient *redis.Client
	redisPrefix string
	now         func() time.Time
}

// RedisConfig configures NewRedisFixedWindowLimiter.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	Limit    int
	Window   time.Duration
	FailOpen bool
}

// NewRedisFixedWindowLimiter creates a Redis-backed distributed limiter.
func NewRedisFixedWindowLimiter(cfg RedisConfig) (*FixedWindowLimiter, error) {
	if err := validate(cfg.Limit, cfg.Window); err != nil {
		return nil, err
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:    cfg.Limit,
		window:   cfg.Window,
		failOpen: cfg.FailOpen,
		redisClient: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		redisPrefix: prefix,
		now:         time.Now,
	}, nil
}

// Allow counts one request for key.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowSlot, retry := slot(l.now(), l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.redisPrefix, key, windowSlot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.redisClient, []string{redisKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		return Decision{Allowed: l.failOpen, RetryAfter: retry}
	}
	if res <= int64(l.limit) {
		return Decision{Allowed: true}
	}
	return Decision{RetryAfter: retry}
}

// Close releases the Redis client.
func (l *FixedWindowLimiter) Close() error {
	return l.redisClient.Close()
}

// MemoryLimiter is a single-process fixed-window limiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	slot   int64
	counts map[string]int
	now    func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	return &MemoryLimiter{limit: limit, window: window, counts: make(map[string]int), now: time.Now}, nil
}

// Allow counts one request for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, retry := slot(m.now(), m.window)
	if s != m.slot {
		m.slot = s
		m.counts = make(map[string]int)
	}
	m.counts[key]++
	if m.counts[key] <= m.limit {
		return Decision{Allowed: true}
	}
	return Decision{RetryAfter: retry}
}
