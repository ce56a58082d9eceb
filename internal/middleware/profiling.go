// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig configures the pprof middleware. Enabled must never be
// set in production; the middleware refuses to arm itself there even if it is.
type ProfilingConfig struct {
	Enabled     bool
	Environment string
}

// Profiling exposes the net/http/pprof endpoints under /debug/pprof/ when
// enabled. Requests outside that prefix pass through untouched. Production
// environments are refused regardless of the Enabled flag since profiles can
// leak memory contents.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("refusing to enable profiling in production",
				"environment", config.Environment)
			return next
		}

		slog.Warn("pprof endpoints enabled",
			"environment", config.Environment,
			"prefix", "/debug/pprof/")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				next.ServeHTTP(w, r)
				return
			}
			switch r.URL.Path {
			case "/debug/pprof/cmdline":
				pprof.Cmdline(w, r)
			case "/debug/pprof/profile":
				pprof.Profile(w, r)
			case "/debug/pprof/symbol":
				pprof.Symbol(w, r)
			case "/debug/pprof/trace":
				pprof.Trace(w, r)
			default:
				// Index also serves the named profiles (heap, goroutine, ...).
				pprof.Index(w, r)
			}
		})
	}
}

// ProfilingStatus reports whether profiling is armed, for operator checks.
func ProfilingStatus(config ProfilingConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		status := "disabled"
		if config.Enabled {
			status = "enabled"
		}
		err := json.NewEncoder(w).Encode(map[string]any{
			"profiling_enabled": config.Enabled,
			"environment":       config.Environment,
			"status":            status,
			"prefix":            "/debug/pprof/",
		})
		if err != nil {
			slog.Error("failed to write profiling status", "error", err)
		}
	}
}
