package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRAGMetrics initializes retrieval index metrics.
func (m *Manager) initRAGMetrics(cfg Config) {
	m.ragDocuments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_documents_indexed_total",
			Help: "Total number of documents indexed",
		},
		[]string{},
	)

	m.ragChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_chunks_indexed_total",
			Help: "Total number of chunks created by indexing",
		},
		[]string{},
	)

	m.ragSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_searches_total",
			Help: "Total number of index searches by result",
		},
		[]string{"result"},
	)

	m.ragSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_search_duration_seconds",
			Help:    "Index search duration in seconds",
			Buckets: cfg.SearchDurationBuckets,
		},
		[]string{},
	)

	m.ragIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_index_chunks",
			Help: "Current number of chunks held by the index",
		},
	)

	m.ragPersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_persist_failures_total",
			Help: "Total number of failed best-effort persistence calls",
		},
		[]string{"operation"},
	)

	m.registry.MustRegister(m.ragDocuments)
	m.registry.MustRegister(m.ragChunks)
	m.registry.MustRegister(m.ragSearches)
	m.registry.MustRegister(m.ragSearchDuration)
	m.registry.MustRegister(m.ragIndexSize)
	m.registry.MustRegister(m.ragPersistFailures)
}

// RecordDocumentIndexed records one indexed document and its chunk count.
func (m *Manager) RecordDocumentIndexed(chunks int) {
	if !m.enabled {
		return
	}
	m.ragDocuments.WithLabelValues().Inc()
	m.ragChunks.WithLabelValues().Add(float64(chunks))
}

// RecordSearch records a search with whether it returned any result.
func (m *Manager) RecordSearch(ctx context.Context, hit bool, duration time.Duration) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ragSearches.WithLabelValues(result).Inc()
	observe(ctx, m.ragSearchDuration.WithLabelValues(), duration.Seconds())
}

// SetIndexSize sets the current chunk count.
func (m *Manager) SetIndexSize(n int) {
	if !m.enabled {
		return
	}
	m.ragIndexSize.Set(float64(n))
}

// RecordPersistFailure records a failed persistence call.
func (m *Manager) RecordPersistFailure(operation string) {
	if !m.enabled {
		return
	}
	m.ragPersistFailures.WithLabelValues(operation).Inc()
}
