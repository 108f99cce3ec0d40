// Package middleware holds the HTTP middleware chain of the TC API.
package middleware

import (
	"net/http"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/logger"
)

// quietPaths are probe endpoints logged at debug level so orchestrator
// polling does not flood the request log.
var quietPaths = map[string]struct{}{
	"/health": {},
	"/ready":  {},
	"/live":   {},
}

// Logger logs one line per request. 5xx responses are logged as warnings.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			args := []any{
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", sw.size,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			}
			switch {
			case sw.status >= http.StatusInternalServerError:
				log.WarnContext(r.Context(), "HTTP request", args...)
			case isQuiet(r.URL.Path):
				log.DebugContext(r.Context(), "HTTP request", args...)
			default:
				log.InfoContext(r.Context(), "HTTP request", args...)
			}
		})
	}
}

func isQuiet(path string) bool {
	_, ok := quietPaths[path]
	return ok
}
