// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (optional; enables the profile cache and the Redis rate
	// limit store)
	RedisURL string `koanf:"redis_url"`

	// LiveKit (WebRTC)
	LiveKitURL       string `koanf:"livekit_url"`
	LiveKitAPIKey    string `koanf:"livekit_api_key"`
	LiveKitAPISecret string `koanf:"livekit_api_secret"`

	// User directory service
	UserServiceURL    string        `koanf:"user_service_url"`
	UserLookupTimeout time.Duration `koanf:"user_lookup_timeout"`

	// Room lifecycle
	RoomMaxAge    time.Duration `koanf:"room_max_age"`
	RoomRetention time.Duration `koanf:"room_retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// CORS
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Tracing
	TracingEnabled  bool   `koanf:"tracing_enabled"`
	TracingEndpoint string `koanf:"tracing_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL      = errors.New("DATABASE_URL is required")
	ErrMissingLiveKitURL       = errors.New("LIVEKIT_URL is required")
	ErrMissingLiveKitAPIKey    = errors.New("LIVEKIT_API_KEY is required")
	ErrMissingLiveKitAPISecret = errors.New("LIVEKIT_API_SECRET is required")
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
	ErrInvalidDuration         = errors.New("duration values must be valid Go durations")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultUserLookupTimeout = 3 * time.Second
	DefaultRoomMaxAge        = 24 * time.Hour
	DefaultRoomRetention     = 7 * 24 * time.Hour
	DefaultSweepInterval     = 1 * time.Hour
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	lookupTimeout, err := getEnvDurationOrDefault("USER_LOOKUP_TIMEOUT", k.Duration("user_lookup_timeout"), DefaultUserLookupTimeout)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	roomMaxAge, err := getEnvDurationOrDefault("ROOM_MAX_AGE", k.Duration("room_max_age"), DefaultRoomMaxAge)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	roomRetention, err := getEnvDurationOrDefault("ROOM_RETENTION", k.Duration("room_retention"), DefaultRoomRetention)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	sweepInterval, err := getEnvDurationOrDefault("SWEEP_INTERVAL", k.Duration("sweep_interval"), DefaultSweepInterval)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefaultMulti([]string{"ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		LiveKitURL:         getEnvOrKoanf("LIVEKIT_URL", k, "livekit_url"),
		LiveKitAPIKey:      getEnvOrKoanf("LIVEKIT_API_KEY", k, "livekit_api_key"),
		LiveKitAPISecret:   getEnvOrKoanf("LIVEKIT_API_SECRET", k, "livekit_api_secret"),
		UserServiceURL:     getEnvOrKoanf("USER_SERVICE_URL", k, "user_service_url"),
		UserLookupTimeout:  lookupTimeout,
		RoomMaxAge:         roomMaxAge,
		RoomRetention:      roomRetention,
		SweepInterval:      sweepInterval,
		CORSAllowedOrigins: getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		TracingEnabled:     getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingEndpoint:    getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf returns a comma-separated environment list if set,
// otherwise the koanf string slice.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvBoolOrKoanf returns a boolean environment variable if set, otherwise
// the koanf value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if
// set, otherwise the koanf value, or default. Accepts Go duration syntax
// ("30m", "24h").
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.LiveKitURL == "" {
		errs = append(errs, ErrMissingLiveKitURL)
	}
	if c.LiveKitAPIKey == "" {
		errs = append(errs, ErrMissingLiveKitAPIKey)
	}
	if c.LiveKitAPISecret == "" {
		errs = append(errs, ErrMissingLiveKitAPISecret)
	}

	return errs
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 fmt.Sprintf("%d", c.Port),
		"env":                  c.Env,
		"database_url":         maskDatabaseURL(c.DatabaseURL),
		"redis_url":            maskDatabaseURL(c.RedisURL),
		"livekit_url":          c.LiveKitURL,
		"livekit_api_key":      maskSecret(c.LiveKitAPIKey),
		"livekit_api_secret":   maskSecret(c.LiveKitAPISecret),
		"user_service_url":     c.UserServiceURL,
		"user_lookup_timeout":  c.UserLookupTimeout.String(),
		"room_max_age":         c.RoomMaxAge.String(),
		"room_retention":       c.RoomRetention.String(),
		"sweep_interval":       c.SweepInterval.String(),
		"cors_allowed_origins": strings.Join(c.CORSAllowedOrigins, ","),
		"tracing_enabled":      fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_endpoint":     c.TracingEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
