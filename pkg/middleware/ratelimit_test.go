package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewRateLimiter(client, logger), mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	limiter.anonCfg.RequestsPerWindow = 3

	handler := limiter.Handler(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
		r.RemoteAddr = "10.0.0.1:4567"
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	limiter.anonCfg.RequestsPerWindow = 2

	handler := limiter.Handler(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
		r.RemoteAddr = "10.0.0.1:4567"
		handler.ServeHTTP(last, r)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "rate_limited")
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestRateLimiterPerUserKeysIndependently(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	limiter.userCfg.RequestsPerWindow = 1
	limiter.anonCfg.RequestsPerWindow = 1

	handler := limiter.PerUser(okHandler())

	serve := func(userID string) int {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
		r.RemoteAddr = "10.0.0.1:4567"
		if userID != "" {
			authCtx := &rbac.AuthContext{UserID: userID, Role: rbac.RoleEditor}
			r = r.WithContext(rbac.WithAuthContext(r.Context(), authCtx))
		}
		handler.ServeHTTP(w, r)
		return w.Code
	}

	// Two users behind the same IP get independent budgets.
	assert.Equal(t, http.StatusOK, serve("u1"))
	assert.Equal(t, http.StatusOK, serve("u2"))
	assert.Equal(t, http.StatusTooManyRequests, serve("u1"))

	// Unauthenticated requests fall back to the IP budget.
	assert.Equal(t, http.StatusOK, serve(""))
	assert.Equal(t, http.StatusTooManyRequests, serve(""))
}

func TestRateLimiterPerUserWritesRedisUserKey(t *testing.T) {
	limiter, mr := newTestLimiter(t)

	handler := limiter.PerUser(okHandler())
	r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	r.RemoteAddr = "10.0.0.1:4567"
	authCtx := &rbac.AuthContext{UserID: "u7", Role: rbac.RoleEditor}
	r = r.WithContext(rbac.WithAuthContext(r.Context(), authCtx))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var userKeys int
	for _, key := range mr.Keys() {
		if strings.Contains(key, "user:u7") {
			userKeys++
		}
	}
	assert.Equal(t, 1, userKeys, "expected one counter keyed by user ID")
}

func TestRateLimiterFailsOpenOnRedisOutage(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	limiter.anonCfg.RequestsPerWindow = 1
	mr.Close()

	handler := limiter.Handler(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
		r.RemoteAddr = "10.0.0.1:4567"
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiterDisabledWithoutClient(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	limiter := NewRateLimiter(nil, logger)

	handler := limiter.Handler(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:4567"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))

	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", clientIP(r))
}
