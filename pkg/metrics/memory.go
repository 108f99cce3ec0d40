package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes long-term memory metrics.
func (m *Manager) initMemoryMetrics(cfg Config) {
	m.memoryRemembered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_facts_remembered_total",
			Help: "Total number of facts remembered",
		},
		[]string{},
	)

	m.memoryRecalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_recalls_total",
			Help: "Total number of recall calls by result",
		},
		[]string{"result"},
	)

	m.memoryPrunes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_prunes_total",
			Help: "Total number of prune passes",
		},
		[]string{},
	)

	m.memoryFacts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_facts",
			Help: "Current number of long-term facts",
		},
	)

	m.registry.MustRegister(m.memoryRemembered)
	m.registry.MustRegister(m.memoryRecalls)
	m.registry.MustRegister(m.memoryPrunes)
	m.registry.MustRegister(m.memoryFacts)
}

// RecordFactRemembered records a remembered fact.
func (m *Manager) RecordFactRemembered() {
	if !m.enabled {
		return
	}
	m.memoryRemembered.WithLabelValues().Inc()
}

// RecordRecall records a recall with whether any fact came back.
func (m *Manager) RecordRecall(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.memoryRecalls.WithLabelValues(result).Inc()
}

// RecordPrune records a prune pass.
func (m *Manager) RecordPrune() {
	if !m.enabled {
		return
	}
	m.memoryPrunes.WithLabelValues().Inc()
}

// SetFactCount sets the current number of facts.
func (m *Manager) SetFactCount(n int) {
	if !m.enabled {
		return
	}
	m.memoryFacts.Set(float64(n))
}
