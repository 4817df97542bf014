package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	events   *prometheus.CounterVec
	lamports *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed pay request events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "shadowpay",
				Subsystem: "events",
				Name:      "total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			lamports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "shadowpay",
				Subsystem: "events",
				Name:      "lamports_total",
				Help:      "Lamports moved by committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.lamports)
	})
	return eventRegistry
}

// RecordEvent counts one committed event of eventType that moved lamports.
func (m *eventMetrics) RecordEvent(eventType string, lamports uint64) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
	if lamports > 0 {
		m.lamports.WithLabelValues(normalized).Add(float64(lamports))
	}
}
