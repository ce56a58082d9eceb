// Package userdir resolves user display names against the user directory
// service, with an optional Redis cache in front of it.
package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLookupTimeout bounds a single directory lookup so a slow
	// directory cannot stall token issuance.
	DefaultLookupTimeout = 3 * time.Second

	// cacheTTL is how long resolved profiles stay in Redis.
	cacheTTL = 10 * time.Minute

	cacheKeyPrefix = "userdir:profile:"
)

var (
	// ErrUserNotFound is returned when the directory has no such user.
	ErrUserNotFound = errors.New("user not found")

	// ErrDirectoryUnavailable is returned when the directory cannot be
	// reached or answers with a server error.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
)

// PublicProfile is the public subset of a directory user record.
type PublicProfile struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// DisplayName returns the best available human-readable name.
func (p *PublicProfile) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Username != "":
		return p.Username
	default:
		return p.Email
	}
}

// Client looks up public user profiles over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets a Redis client used to cache resolved profiles.
func WithCache(rdb *redis.Client) Option {
	return func(c *Client) { c.cache = rdb }
}

// WithTimeout overrides the per-lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultLookupTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the public profile for userID, consulting the cache first.
func (c *Client) Lookup(ctx context.Context, userID string) (*PublicProfile, error) {
	if c.baseURL == "" {
		return nil, ErrDirectoryUnavailable
	}

	if p := c.cached(ctx, userID); p != nil {
		return p, nil
	}

	endpoint := fmt.Sprintf("%s/api/users/public/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrDirectoryUnavailable, resp.StatusCode)
	}

	var body struct {
		Result PublicProfile `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}

	c.store(ctx, userID, &body.Result)
	return &body.Result, nil
}

// ResolveDisplayName picks the display name for a joining participant.
// Preference order: the caller-supplied name, then the directory profile,
// then the raw user id, then a generated anonymous name. Directory failures
// degrade to the next link in the chain.
func (c *Client) ResolveDisplayName(ctx context.Context, userID, preferred string) string {
	if name := strings.TrimSpace(preferred); name != "" {
		return name
	}
	if userID != "" {
		profile, err := c.Lookup(ctx, userID)
		if err == nil {
			if name := profile.DisplayName(); name != "" {
				return name
			}
		} else if !errors.Is(err, ErrUserNotFound) {
			c.logger.Warn("user directory lookup failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
		return userID
	}
	return fmt.Sprintf("user_%d", time.Now().UnixMilli())
}

func (c *Client) cached(ctx context.Context, userID string) *PublicProfile {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, cacheKeyPrefix+userID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("profile cache read failed",
				slog.String("error", err.Error()))
		}
		return nil
	}
	var p PublicProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	return &p
}

func (c *Client) store(ctx context.Context, userID string, p *PublicProfile) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+userID, data, cacheTTL).Err(); err != nil {
		c.logger.Warn("profile cache write failed",
			slog.String("error", err.Error()))
	}
}
