package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Decision is a limiter's answer for a single request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Limiter replaces the in-process token buckets, for example with a
	// RedisLimiter shared by every replica.
	Limiter Limiter
	// KeyFunc picks the bucket for a request. Defaults to the client IP.
	KeyFunc func(c echo.Context) string
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// Window is the fixed window a RedisLimiter needs to allow BurstSize requests
// at RequestsPerSecond on average. Never shorter than a second.
func (c RateLimitConfig) Window() time.Duration {
	if c.RequestsPerSecond <= 0 || c.BurstSize <= 0 {
		return time.Second
	}
	w := time.Duration(float64(c.BurstSize) / c.RequestsPerSecond * float64(time.Second))
	if w < time.Second {
		return time.Second
	}
	return w
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastSeen   time.Time
}

func (b *tokenBucket) take(now time.Time) Decision {
	b.tokens = math.Min(b.maxTokens, b.tokens+now.Sub(b.lastSeen).Seconds()*b.refillRate)
	b.lastSeen = now
	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}
	}
	retry := time.Second
	if b.refillRate > 0 {
		retry = time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	}
	return Decision{RetryAfter: retry}
}

// MemoryLimiter keeps one token bucket per key in process memory. Buckets idle
// long enough to have refilled completely are dropped.
type MemoryLimiter struct {
	rate      float64
	burst     int
	idle      time.Duration
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	idle := time.Minute
	if rate > 0 {
		if full := time.Duration(float64(burst) / rate * float64(time.Second)); full > idle {
			idle = full
		}
	}
	return &MemoryLimiter{
		rate:    rate,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), maxTokens: float64(l.burst), refillRate: l.rate, lastSeen: now}
		l.buckets[key] = b
	}
	return b.take(now), nil
}

// Len reports how many buckets are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

const rateLimitKeyPrefix = "portal:ratelimit:"

// RedisLimiter allows limit requests per key in each fixed window, counted in
// Redis so that every server instance shares the budget.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := rateLimitKeyPrefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	if count <= l.limit {
		return Decision{Allowed: true, Remaining: l.limit - count}, nil
	}
	windowEnd := time.Unix(0, (slot+1)*int64(l.window))
	return Decision{RetryAfter: windowEnd.Sub(now)}, nil
}

// RateLimit returns a rate limiting middleware keyed by client IP. When the
// limiter itself fails the request is let through.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewMemoryLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c echo.Context) string { return c.RealIP() }
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, err := limiter.Allow(c.Request().Context(), keyFunc(c))
			if err != nil {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
