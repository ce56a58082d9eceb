// Package health provides dependency checkers for the readiness endpoint.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DBChecker reports database reachability.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over an open connection pool.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// RedisChecker reports Redis reachability.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a checker over an existing client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// LiveKitChecker probes the media server over HTTP. LiveKit exposes no
// dedicated health endpoint, so any 2xx from the base URL counts as up.
type LiveKitChecker struct {
	url    string
	client *http.Client
}

// NewLiveKitChecker creates a checker for the given server URL. WebSocket
// URLs (ws:// or wss://), which is how the server address is usually
// configured, are probed over the matching HTTP scheme.
func NewLiveKitChecker(url string) *LiveKitChecker {
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	return &LiveKitChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck issues a GET against the server base URL.
func (c *LiveKitChecker) HealthCheck(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("livekit url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("livekit unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("livekit unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
