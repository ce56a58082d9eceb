// Package api provides HTTP API handlers for the classroom service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/trungducnguyen4/classroom-service/internal/middleware"
)

// HealthChecker is implemented by dependencies that can report their own
// availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers serves the liveness and readiness probes. Readiness walks
// the configured dependency checkers; a nil checker means the dependency is
// not wired in this deployment and its check reports ok.
type HealthHandlers struct {
	livekitChecker HealthChecker
	redisChecker   HealthChecker
	dbChecker      HealthChecker
	metricsEnabled bool
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	LiveKitChecker HealthChecker
	RedisChecker   HealthChecker
	DBChecker      HealthChecker
	MetricsEnabled bool
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		livekitChecker: config.LiveKitChecker,
		redisChecker:   config.RedisChecker,
		dbChecker:      config.DBChecker,
		metricsEnabled: config.MetricsEnabled,
	}
}

// HealthResponse is the JSON body of both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// dependencyCheck pairs a checker with its readiness semantics. Critical
// dependencies flip readiness to 503 on failure; the rest only surface the
// failure in the checks map.
type dependencyCheck struct {
	name     string
	checker  HealthChecker
	critical bool
}

// Health handles GET /health (liveness probe). If the process can run this
// handler it is alive.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeHealthResponse(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). Database and LiveKit failures
// make the service unready. Redis only backs caching and rate limiting, so
// its failure degrades rather than blocks traffic.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	for _, dep := range []dependencyCheck{
		{"database", h.dbChecker, true},
		{"livekit", h.livekitChecker, true},
		{"redis", h.redisChecker, false},
	} {
		if dep.checker == nil {
			checks[dep.name] = "ok"
			continue
		}
		if err := dep.checker.HealthCheck(ctx); err != nil {
			checks[dep.name] = "error"
			if dep.critical {
				healthy = false
			}
			slog.WarnContext(ctx, dep.name+" health check failed", "error", err)
			continue
		}
		checks[dep.name] = "ok"
	}

	// The Prometheus registry is always initialized.
	checks["metrics"] = "ok"

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	writeHealthResponse(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeHealthResponse(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
