package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, attempts int) (*LoginRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := DefaultLoginRateLimitConfig()
	cfg.AttemptsPerWindow = attempts
	return NewLoginRateLimiter(client, cfg, testLogger()), mr
}

func loginAttempt(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginRateLimiter_AllowsUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := loginAttempt(handler, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLoginRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	loginAttempt(handler, "10.0.0.2")
	loginAttempt(handler, "10.0.0.2")
	rec := loginAttempt(handler, "10.0.0.2")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// a different client is unaffected
	rec = loginAttempt(handler, "10.0.0.3")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := loginAttempt(handler, "10.0.0.4")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = loginAttempt(handler, "10.0.0.4")
	assert.Equal(t, http.StatusOK, rec.Code, "limiter must fail open")
}
