package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/httputil"
	"github.com/beanvault/wallpaper-ai/internal/metrics"
)

// AdminTokenHeader carries the shared secret for the generation triggers.
const AdminTokenHeader = "X-Admin-Token"

// withAdminToken rejects requests lacking the configured admin token. With
// no token configured every request is allowed through.
func (s *Server) withAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid admin token")
			httputil.Error(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// withMetrics emits RequestLatencyMs and RequestCount per request with an
// Endpoint dimension.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		metrics.New(metrics.Namespace).
			Dimension("Endpoint", normalizeEndpoint(r.URL.Path)).
			Since("RequestLatencyMs", start).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Property("path", r.URL.Path).
			Flush()
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		evt := log.Info()
		if sr.statusCode >= http.StatusInternalServerError {
			evt = log.Error()
		} else if sr.statusCode >= http.StatusBadRequest {
			evt = log.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}

// knownEndpoints are reported as-is; anything else collapses to "other" to
// keep the Endpoint dimension low-cardinality.
var knownEndpoints = map[string]bool{
	"/health":               true,
	"/api/download":         true,
	"/api/top-downloads":    true,
	"/api/latest":           true,
	"/api/categories/light": true,
	"/api/categories/dark":  true,
	"/generate/light":       true,
	"/generate/dark":        true,
	"/webhook/generated":    true,
	"/webhook/upscale":      true,
}

func normalizeEndpoint(path string) string {
	path = strings.TrimRight(path, "/")
	if knownEndpoints[path] {
		return path
	}
	return "other"
}
