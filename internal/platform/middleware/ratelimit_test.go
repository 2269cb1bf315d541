package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func hit(e *echo.Echo, h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		rec, err := hit(e, h, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: X-RateLimit-Limit = %q", i+1, got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(4-i) {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %d", i+1, got, 4-i)
		}
	}
}

func TestRateLimit_ExceededSetsRetryAfter(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if _, err := hit(e, h, "10.0.0.2"); err != nil {
		t.Fatal(err)
	}
	rec, err := hit(e, h, "10.0.0.2")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if _, err := hit(e, h, "10.0.0.3"); err != nil {
		t.Fatal(err)
	}
	if _, err := hit(e, h, "10.0.0.3"); err == nil {
		t.Fatal("second request from the same IP should be limited")
	}
	if _, err := hit(e, h, "10.0.0.4"); err != nil {
		t.Fatalf("other IP should have its own bucket: %v", err)
	}
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		KeyFunc:           func(echo.Context) string { return "everyone" },
	})(okHandler)

	if _, err := hit(e, h, "10.0.0.5"); err != nil {
		t.Fatal(err)
	}
	if _, err := hit(e, h, "10.0.0.6"); err == nil {
		t.Fatal("a shared key should share the budget")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimit_LimiterErrorLetsRequestThrough(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, Limiter: failingLimiter{}})(okHandler)
	for i := 0; i < 3; i++ {
		if _, err := hit(e, h, "10.0.0.7"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Window() != 2*time.Second {
		t.Errorf("expected 2s window, got %s", cfg.Window())
	}
	if (RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10}).Window() != time.Second {
		t.Error("window should not drop below one second")
	}
}

func TestMemoryLimiter_RefillAndEviction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(1, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(ctx, "a"); !d.Allowed {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	d, _ := l.Allow(ctx, "a")
	if d.Allowed || d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Fatalf("expected denial with retry within 1s, got %+v", d)
	}

	now = now.Add(time.Second)
	if d, _ := l.Allow(ctx, "a"); !d.Allowed {
		t.Fatal("one token should have refilled")
	}

	_, _ = l.Allow(ctx, "b")
	if l.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.Len())
	}
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	if l.Len() != 1 {
		t.Errorf("idle buckets should be evicted, %d left", l.Len())
	}
}

func TestMemoryLimiter_ZeroRate(t *testing.T) {
	l := NewMemoryLimiter(0, 1)
	ctx := context.Background()
	_, _ = l.Allow(ctx, "k")
	d, _ := l.Allow(ctx, "k")
	if d.Allowed || d.RetryAfter != time.Second {
		t.Errorf("expected denial with 1s retry for zero rate, got %+v", d)
	}
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	l := NewRedisLimiter(client, 2, time.Minute)
	key := "test-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v %v", i+1, d, err)
		}
	}
	d, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("expected denial within the window, got %+v", d)
	}
}

func TestRedisLimiter_UnreachableReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	if _, err := NewRedisLimiter(client, 1, time.Second).Allow(context.Background(), "k"); err == nil {
		t.Error("expected an error from an unreachable redis")
	}
}
