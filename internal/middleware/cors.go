// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the explicit origin allowlist. Wildcards are not
	// supported; an empty list disables CORS handling entirely.
	AllowedOrigins []string

	// AllowedMethods and AllowedHeaders are advertised on preflight
	// responses. Both fall back to sensible defaults when empty.
	AllowedMethods []string
	AllowedHeaders []string

	// AllowCredentials controls Access-Control-Allow-Credentials.
	AllowCredentials bool

	// MaxAge is the preflight cache duration in seconds.
	MaxAge int
}

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", RequestIDHeader}
)

// CORS returns a middleware enforcing a strict origin allowlist. Requests
// from origins outside the list are rejected with 403; preflight OPTIONS
// requests from allowed origins are answered without reaching the handler.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	methodList := strings.Join(methods, ", ")
	headerList := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin requests carry no Origin header. With no
			// allowlist configured there is nothing to enforce either.
			if origin == "" || len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			// Method and header lists only matter during preflight.
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methodList)
				h.Set("Access-Control-Allow-Headers", headerList)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
