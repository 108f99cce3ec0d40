package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initChatMetrics initializes chat provider metrics.
func (m *Manager) initChatMetrics(cfg Config) {
	m.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total number of chat completion requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	m.chatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Chat completion duration in seconds",
			Buckets: cfg.ChatDurationBuckets,
		},
		[]string{"provider"},
	)

	m.chatFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_fragments_total",
			Help: "Total number of streamed completion fragments",
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(m.chatRequests)
	m.registry.MustRegister(m.chatDuration)
	m.registry.MustRegister(m.chatFragments)
}

// RecordChatRequest records a completed chat call.
func (m *Manager) RecordChatRequest(ctx context.Context, provider, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.chatRequests.WithLabelValues(provider, status).Inc()
	observe(ctx, m.chatDuration.WithLabelValues(provider), duration.Seconds())
}

// RecordStreamFragment records one streamed fragment.
func (m *Manager) RecordStreamFragment(provider string) {
	if !m.enabled {
		return
	}
	m.chatFragments.WithLabelValues(provider).Inc()
}
