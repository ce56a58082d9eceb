// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit: at most RequestsPerWindow
// requests per key per WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive limits and windows.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// Default limits, tiered by abuse potential. Token minting implicitly
// creates rooms, so it gets the tightest non-admin budget.
var (
	defaultGlobalLimit = RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}
	defaultTokenLimit  = RateLimitConfig{RequestsPerWindow: 30, WindowDuration: time.Minute}
	defaultAdminLimit  = RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
)

// DefaultGlobalLimit returns a copy of the default per-client limit.
func DefaultGlobalLimit() RateLimitConfig { return defaultGlobalLimit }

// DefaultTokenLimit returns a copy of the default token endpoint limit.
func DefaultTokenLimit() RateLimitConfig { return defaultTokenLimit }

// DefaultAdminLimit returns a copy of the default admin endpoint limit.
func DefaultAdminLimit() RateLimitConfig { return defaultAdminLimit }

// RateLimitStore tracks request counts per key. Implementations exist for
// in-memory state and Redis.
type RateLimitStore interface {
	// Allow records one request for key and reports whether it fits in the
	// current window, how many requests remain, and the seconds until the
	// window resets (zero when allowed).
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore is a fixed-window counter over a map. It is the
// fallback when no Redis client is configured; counts are then per-process.
type InMemoryRateLimitStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{buckets: make(map[string]*bucket)}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, ok := s.buckets[key]
	if !ok || now.After(b.windowEnd) {
		s.buckets[key] = &bucket{count: 1, windowEnd: now.Add(config.WindowDuration)}
		return true, config.RequestsPerWindow - 1, 0
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return true, config.RequestsPerWindow - b.count, 0
	}

	retryAfter := int(b.windowEnd.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// Cleanup drops expired buckets. Run it on a ticker of a few multiples of
// the longest configured window.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP: the first X-Forwarded-For hop, then
// X-Real-IP, then RemoteAddr with the port stripped.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
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
			// RemoteAddr without a port
			return r.RemoteAddr
		}
		return host
	}
}

// UserKeyFunc keys by the acting user id when a handler has set one, and by
// client IP otherwise. The prefixes keep the two key spaces apart.
func UserKeyFunc() KeyFunc {
	byIP := IPKeyFunc()
	return func(r *http.Request) string {
		if id := GetActorID(r.Context()); id != "" {
			return "user:" + id
		}
		return "ip:" + byIP(r)
	}
}

// RateLimiter refuses over-limit requests with 429. Every response carries
// X-RateLimit-Limit and X-RateLimit-Remaining; refusals add Retry-After and
// an X-RateLimit-Reset Unix timestamp.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, retryAfter := store.Allow(r.Context(), keyFunc(r), config)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limit_exceeded"))

				reset := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
