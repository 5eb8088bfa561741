package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bubbleup/bubbleup/pkg/httputil"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

// RateLimitConfig controls a fixed-window rate limit.
type RateLimitConfig struct {
	RequestsPerWindow int64
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig applies to unauthenticated clients, keyed by IP.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig applies to authenticated users.
func PerUserRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter enforces fixed-window limits against Redis so the limit holds
// across replicas. When Redis is unreachable the limiter fails open: an
// unavailable limiter must not take the API down with it.
type RateLimiter struct {
	client    *redis.Client
	keyPrefix string
	userCfg   RateLimitConfig
	anonCfg   RateLimitConfig
	logger    *observability.Logger
}

// NewRateLimiter creates a Redis-backed rate limiter. A nil client disables
// limiting entirely.
func NewRateLimiter(client *redis.Client, logger *observability.Logger) *RateLimiter {
	return &RateLimiter{
		client:    client,
		keyPrefix: "ratelimit",
		userCfg:   PerUserRateLimitConfig(),
		anonCfg:   DefaultRateLimitConfig(),
		logger:    logger,
	}
}

// Allow increments the counter for key and reports whether the request is
// within the configured window limit. Redis errors are returned alongside
// allow=true so callers fail open.
func (rl *RateLimiter) Allow(ctx context.Context, key string, cfg RateLimitConfig) (bool, int64, error) {
	window := time.Now().Unix() / int64(cfg.WindowDuration.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", rl.keyPrefix, key, window)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	remaining := cfg.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= cfg.RequestsPerWindow, remaining, nil
}

// Handler is the pre-authentication stage: every request is keyed by client
// IP so abusive clients are cut off before the credential ever reaches the
// identity provider.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.limit(w, r, "ip:"+clientIP(r), rl.anonCfg, next)
	})
}

// PerUser is the post-authentication stage: each authenticated user gets an
// independent budget regardless of source address. It must run after the
// authorization middleware; a request without an auth context falls back to
// IP keying.
func (rl *RateLimiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authCtx := rbac.GetAuthContext(r); authCtx != nil {
			rl.limit(w, r, "user:"+authCtx.UserID, rl.userCfg, next)
			return
		}
		rl.limit(w, r, "ip:"+clientIP(r), rl.anonCfg, next)
	})
}

func (rl *RateLimiter) limit(w http.ResponseWriter, r *http.Request, key string, cfg RateLimitConfig, next http.Handler) {
	if rl == nil || rl.client == nil {
		next.ServeHTTP(w, r)
		return
	}

	allowed, remaining, err := rl.Allow(r.Context(), key, cfg)
	if err != nil {
		rl.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
		next.ServeHTTP(w, r)
		return
	}

	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

	if !allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowDuration.Seconds())))
		httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
			"kind":    "rate_limited",
			"message": "rate limit exceeded, retry later",
		})
		return
	}

	next.ServeHTTP(w, r)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
