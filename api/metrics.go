/*
metrics.go - Prometheus instrumentation for the API layer

PURPOSE:
  Counts eligibility decisions by outcome and observes availability
  search latency. Exposed on /metrics via promhttp (see server.go).
*/
package api

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/rationing-engine/rationing"
)

// Metrics holds the API-level Prometheus collectors.
type Metrics struct {
	decisions      *prometheus.CounterVec
	searchDuration prometheus.Histogram
	searchResults  prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the API collectors, registering them with the
// default registry on first use. Collectors are process-wide, so
// repeat calls share the same set.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rationing_decisions_total",
			Help: "Eligibility decisions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		searchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "availability_search_duration_seconds",
			Help:    "Latency of availability searches.",
			Buckets: prometheus.DefBuckets,
		}),
		searchResults: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "availability_search_results",
			Help:    "Number of locations returned per availability search.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// RecordDecision counts one eligibility decision.
func (m *Metrics) RecordDecision(d rationing.Decision) {
	outcome := "approved"
	reason := ""
	if !d.Approved {
		outcome = "rejected"
		reason = string(d.Reason)
	}
	m.decisions.WithLabelValues(outcome, reason).Inc()
}

// ObserveSearch records one availability search.
func (m *Metrics) ObserveSearch(d time.Duration, results int) {
	m.searchDuration.Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
}
