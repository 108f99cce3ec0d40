package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// contextMetricsRecorder records with the request context so the
// recorder can attach trace exemplars.
type contextMetricsRecorder interface {
	RecordHTTPRequestWithContext(ctx context.Context, method, path, status string, duration time.Duration)
}

// Metrics returns a middleware that records HTTP metrics. Paths are
// labelled with the chi route pattern when one matched.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	record := func(r *http.Request, status int, duration time.Duration) {
		path := metricsPath(r)
		if cr, ok := recorder.(contextMetricsRecorder); ok {
			cr.RecordHTTPRequestWithContext(r.Context(), r.Method, path, strconv.Itoa(status), duration)
			return
		}
		recorder.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), duration)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			sw := newStatusWriter(w)
			defer func() {
				if p := recover(); p != nil {
					record(r, http.StatusInternalServerError, time.Since(start))
					panic(p)
				}
			}()

			next.ServeHTTP(sw, r)
			record(r, sw.status, time.Since(start))
		})
	}
}

func metricsPath(r *http.Request) string {
	if pattern := routePattern(r); pattern != "" {
		return pattern
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses UUID and numeric segments to ":id" for
// unmatched routes.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = ":id"
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && len(part) > 0 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
