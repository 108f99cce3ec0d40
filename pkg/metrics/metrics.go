// Package metrics provides Prometheus metrics instrumentation for tc.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the Prometheus registry and every collector of the service.
// A disabled Manager accepts all calls and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Retrieval metrics
	ragDocuments       *prometheus.CounterVec
	ragChunks          *prometheus.CounterVec
	ragSearches        *prometheus.CounterVec
	ragSearchDuration  *prometheus.HistogramVec
	ragIndexSize       prometheus.Gauge
	ragPersistFailures *prometheus.CounterVec

	// Memory metrics
	memoryRemembered *prometheus.CounterVec
	memoryRecalls    *prometheus.CounterVec
	memoryPrunes     *prometheus.CounterVec
	memoryFacts      prometheus.Gauge

	// Chat metrics
	chatRequests  *prometheus.CounterVec
	chatDuration  *prometheus.HistogramVec
	chatFragments *prometheus.CounterVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge

	// Websocket metrics
	wsClients  prometheus.Gauge
	wsMessages *prometheus.CounterVec
}

// Config selects the endpoint and histogram buckets.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	SearchDurationBuckets []float64
	ChatDurationBuckets   []float64
	HTTPDurationBuckets   []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Port:                  9091,
		Path:                  "/metrics",
		SearchDurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		ChatDurationBuckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		HTTPDurationBuckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Manager{registry: registry, enabled: true}

	m.initRAGMetrics(cfg)
	m.initMemoryMetrics(cfg)
	m.initChatMetrics(cfg)
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer serves the registry on its own listener until ctx ends. A
// clean shutdown returns nil.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// traceExemplarLabels returns exemplar labels for the span in ctx, if any.
func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}, true
}

// observe records v on obs, attaching a trace exemplar when ctx carries a span.
func observe(ctx context.Context, obs prometheus.Observer, v float64) {
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, labels)
			return
		}
	}
	obs.Observe(v)
}
