package middle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(GetMerchantKey(r.Context())))
})

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware("test-api-key")(okHandler)

	tests := []struct {
		name           string
		authHeader     string
		merchant       string
		expectedStatus int
	}{
		{"valid key", "Bearer test-api-key", "shop-1", http.StatusOK},
		{"invalid key", "Bearer wrong-key", "shop-1", http.StatusUnauthorized},
		{"missing header", "", "shop-1", http.StatusUnauthorized},
		{"invalid format", "Basic test-api-key", "shop-1", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", "shop-1", http.StatusUnauthorized},
		{"missing merchant", "Bearer test-api-key", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.merchant != "" {
				req.Header.Set(MerchantHeader, tt.merchant)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.merchant, rr.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()

	AuthMiddleware("")(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetMerchantKey(t *testing.T) {
	assert.Empty(t, GetMerchantKey(context.Background()))
	assert.Equal(t, "m", GetMerchantKey(WithMerchantKey(context.Background(), "m")))
}

func TestRateLimiter(t *testing.T) {
	now := time.Now()
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   time.Second,
		now:      func() time.Time { return now },
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := rl.Allow(ctx, "ip:192.168.1.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, retry, _ := rl.Allow(ctx, "ip:192.168.1.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	ok, _, _ = rl.Allow(ctx, "ip:10.0.0.1")
	assert.True(t, ok, "keys are counted separately")

	now = now.Add(1100 * time.Millisecond)
	ok, _, _ = rl.Allow(ctx, "ip:192.168.1.1")
	assert.True(t, ok, "a new window starts after the old one ends")
}

func TestNewRateLimiter_DefaultRate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, 100, NewRateLimiter(ctx, 0, time.Minute).Limit())
	assert.Equal(t, 5, NewRateLimiter(ctx, 5, time.Minute).Limit())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := &RateLimiter{visitors: make(map[string]*visitor), rate: 1, window: time.Minute, now: time.Now}
	handler := RateLimitMiddleware(rl)(okHandler)

	send := func(remote, merchant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = remote
		if merchant != "" {
			req = req.WithContext(WithMerchantKey(req.Context(), merchant))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := send("192.168.1.1:12345", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))

	rr = send("192.168.1.1:12346", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// merchants get their own bucket regardless of IP
	assert.Equal(t, http.StatusOK, send("192.168.1.1:12347", "shop-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.9:1", "shop-1").Code)
}

// fakeCounter mimics INCR/EXPIRE/TTL of a Redis server.
type fakeCounter struct {
	counts  map[string]int64
	ttls    map[string]time.Duration
	failErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.failErr != nil {
		return redis.NewIntResult(0, f.failErr)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCounter) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(f.ttls[key]/2, nil)
}

func TestRedisRateLimiter(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRedisRateLimiter(counter, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := rl.Allow(ctx, "merchant:shop-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, time.Minute, counter.ttls["gopos:ratelimit:merchant:shop-1"], "window is set on the first hit")

	ok, retry, err := rl.Allow(ctx, "merchant:shop-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.failErr = assert.AnError
	rl := NewRedisRateLimiter(counter, 1, time.Minute)

	ok, _, err := rl.Allow(context.Background(), "ip:1.2.3.4")
	assert.True(t, ok)
	assert.ErrorIs(t, err, assert.AnError)

	handler := RateLimitMiddleware(rl)(okHandler)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 1.1.1.1 "}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"ipv6 localhost", nil, "[::1]:1234", "127.0.0.1"},
		{"no port", nil, "8.8.8.8", "8.8.8.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeadersMiddleware()(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestIPWhitelistMiddleware(t *testing.T) {
	handler := IPWhitelistMiddleware([]string{"127.0.0.1", " 192.168.1.100 "})(okHandler)

	tests := []struct {
		name           string
		clientIP       string
		expectedStatus int
	}{
		{"whitelisted", "127.0.0.1", http.StatusOK},
		{"trimmed entry", "192.168.1.100", http.StatusOK},
		{"not whitelisted", "192.168.1.99", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.clientIP + ":12345"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestIPWhitelistMiddleware_EmptyAllowsAll(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "8.8.8.8:1"
	rr := httptest.NewRecorder()
	IPWhitelistMiddleware(nil)(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler)

	tests := []struct {
		name           string
		method         string
		path           string
		contentType    string
		contentLength  int64
		expectedStatus int
	}{
		{"json post", http.MethodPost, "/v1/payments/estpos", "application/json", 100, http.StatusOK},
		{"json with charset", http.MethodPost, "/v1/payments/estpos", "application/json; charset=utf-8", 100, http.StatusOK},
		{"form post to api", http.MethodPost, "/v1/payments/estpos", "application/x-www-form-urlencoded", 100, http.StatusUnsupportedMediaType},
		{"missing content type", http.MethodPost, "/v1/payments/estpos", "", 100, http.StatusBadRequest},
		{"bank callback form", http.MethodPost, "/callback/estpos/abc", "application/x-www-form-urlencoded", 100, http.StatusOK},
		{"bank callback without type", http.MethodPost, "/callback/estpos/abc", "", 100, http.StatusOK},
		{"bank callback text", http.MethodPost, "/callback/estpos/abc", "text/plain", 100, http.StatusUnsupportedMediaType},
		{"get without content type", http.MethodGet, "/v1/gateways", "", 0, http.StatusOK},
		{"too large", http.MethodPost, "/v1/payments/estpos", "application/json", MaxBodyBytes + 1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("test body"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.ContentLength = tt.contentLength

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}
