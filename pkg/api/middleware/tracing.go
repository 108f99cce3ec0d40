package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "tc.http"

// TracingOptions controls which requests get a server span.
type TracingOptions struct {
	// SkipPaths are matched exactly.
	SkipPaths map[string]struct{}
	// SkipPrefixes are matched against the start of the path.
	SkipPrefixes []string
}

// DefaultTracingOptions skips probes, scrapes and the API docs.
func DefaultTracingOptions() TracingOptions {
	return TracingOptions{
		SkipPaths: map[string]struct{}{
			"/health": {},
			"/ready":  {},
			"/live":   {},
		},
		SkipPrefixes: []string{"/swagger/", "/metrics"},
	}
}

func (o TracingOptions) skip(path string) bool {
	path = strings.TrimSpace(path)
	if _, ok := o.SkipPaths[path]; ok {
		return true
	}
	for _, prefix := range o.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Tracing starts a server span per request, continuing any inbound trace
// context. The span is renamed to "HTTP <method> <route>" once chi has
// resolved the route.
func Tracing(opts TracingOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(httpTracerName).Start(ctx, "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			if id := GetRequestID(ctx); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}

			sw := newStatusWriter(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			if route == "" {
				route = r.URL.Path
			}
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", sw.status),
			)
			if sw.status >= http.StatusBadRequest {
				span.SetStatus(otelcodes.Error, http.StatusText(sw.status))
			} else {
				span.SetStatus(otelcodes.Ok, "")
			}
		})
	}
}

// routePattern is the matched chi route, or "" outside a chi router.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
