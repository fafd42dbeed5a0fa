package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/observability"
)

// LoginRateLimitConfig bounds authentication attempts per client
type LoginRateLimitConfig struct {
	AttemptsPerWindow int
	WindowDuration    time.Duration
}

// DefaultLoginRateLimitConfig allows 10 attempts per minute per IP
func DefaultLoginRateLimitConfig() *LoginRateLimitConfig {
	return &LoginRateLimitConfig{
		AttemptsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// LoginRateLimiter throttles credential endpoints using Redis so the
// limit holds across instances. Redis errors fail open: login must not
// depend on Redis availability.
type LoginRateLimiter struct {
	redis  *redis.Client
	config *LoginRateLimitConfig
	logger *observability.Logger
	prefix string
}

// NewLoginRateLimiter creates a Redis-backed login limiter
func NewLoginRateLimiter(redisClient *redis.Client, config *LoginRateLimitConfig, logger *observability.Logger) *LoginRateLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	return &LoginRateLimiter{
		redis:  redisClient,
		config: config,
		logger: logger,
		prefix: "canon:ratelimit:login",
	}
}

// Handler wraps a credential endpoint with per-IP rate limiting
func (rl *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s:%s", rl.prefix, clientIP(r))

		pipe := rl.redis.Pipeline()
		incr := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, rl.config.WindowDuration)
		if _, err := pipe.Exec(r.Context()); err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		if incr.Val() > int64(rl.config.AttemptsPerWindow) {
			retryAfter := rl.config.WindowDuration
			if ttl, err := rl.redis.TTL(r.Context(), key).Result(); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			httputil.WriteTooManyRequests(w, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, preferring X-Forwarded-For
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
