package middle

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request under key fits the window.
// When it refuses, retryAfter tells the caller how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	Limit() int
}

// RateLimiter is a fixed-window limiter held in process memory.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per window and
// starts its cleanup loop, which stops when ctx is done.
func NewRateLimiter(ctx context.Context, rate int, window time.Duration) *RateLimiter {
	if rate <= 0 {
		rate = 100
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup(ctx)
	return rl
}

func (rl *RateLimiter) Limit() int { return rl.rate }

// Allow checks if the request is allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[key] = &visitor{count: 1, lastReset: now}
		return true, 0, nil
	}
	if v.count >= rl.rate {
		return false, v.lastReset.Add(rl.window).Sub(now), nil
	}
	v.count++
	return true, 0, nil
}

// cleanup removes old entries
func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, v := range rl.visitors {
				if now.Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisRateLimiter is a fixed-window limiter shared by every replica
// through Redis counters.
type RedisRateLimiter struct {
	client redisCounter
	rate   int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing rate requests per window.
func NewRedisRateLimiter(client redisCounter, rate int, window time.Duration) *RedisRateLimiter {
	if rate <= 0 {
		rate = 100
	}
	return &RedisRateLimiter{client: client, rate: rate, window: window}
}

func (rl *RedisRateLimiter) Limit() int { return rl.rate }

// Allow counts the request. Redis errors let the request through and are
// returned for logging.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := "gopos:ratelimit:" + key

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, 0, err
		}
	}
	if count <= int64(rl.rate) {
		return true, 0, nil
	}

	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = rl.window
	}
	return false, ttl, nil
}

// RateLimitMiddleware limits authenticated requests per merchant and the
// rest per client IP.
func RateLimitMiddleware(rl Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + GetClientIP(r)
			if mk := GetMerchantKey(r.Context()); mk != "" {
				key = "merchant:" + mk
			}

			allowed, retryAfter, err := rl.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing request", logger.LogContext{
					Fields: map[string]any{"key": key, "error": err.Error()},
				})
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit()))
			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Round(time.Second).Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP extracts the real client IP
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "::1" || host == "[::1]" {
		return "127.0.0.1"
	}
	return host
}
