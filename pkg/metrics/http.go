package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initHTTPMetrics registers the API and websocket metrics.
func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: cfg.HTTPDurationBuckets,
	}, []string{"method", "path"})

	m.httpConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_active_connections",
		Help: "Requests currently being served",
	})

	m.wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_clients",
		Help: "Connected websocket clients",
	})

	m.wsMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_total",
		Help: "Websocket messages by direction (in, out, dropped) and type",
	}, []string{"direction", "type"})

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.httpConnections, m.wsClients, m.wsMessages)
}

// RecordHTTPRequest counts one finished request.
func (m *Manager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RecordHTTPRequestWithContext(context.Background(), method, path, status, duration)
}

// RecordHTTPRequestWithContext counts one finished request and attaches
// the request span to the duration sample as an exemplar.
func (m *Manager) RecordHTTPRequestWithContext(ctx context.Context, method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	observe(ctx, m.httpDuration.WithLabelValues(method, path), duration.Seconds())
}

func (m *Manager) IncActiveConnections() {
	if m.enabled {
		m.httpConnections.Inc()
	}
}

func (m *Manager) DecActiveConnections() {
	if m.enabled {
		m.httpConnections.Dec()
	}
}

// WebSocketConnected tracks a client joining /ws.
func (m *Manager) WebSocketConnected() {
	if m.enabled {
		m.wsClients.Inc()
	}
}

// WebSocketDisconnected tracks a client leaving /ws.
func (m *Manager) WebSocketDisconnected() {
	if m.enabled {
		m.wsClients.Dec()
	}
}

// RecordWebSocketMessage counts one frame. direction is "in", "out" or
// "dropped" for a client that could not keep up.
func (m *Manager) RecordWebSocketMessage(direction, msgType string) {
	if m.enabled {
		m.wsMessages.WithLabelValues(direction, msgType).Inc()
	}
}
