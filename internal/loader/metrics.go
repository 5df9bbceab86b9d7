package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts loader activity per category.
type Metrics struct {
	fetches  *prometheus.CounterVec
	skips    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the loader collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_wizard",
			Subsystem: "loader",
			Name:      "fetches_total",
			Help:      "Network fetches issued by guarded loaders.",
		}, []string{"category", "outcome"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_wizard",
			Subsystem: "loader",
			Name:      "skips_total",
			Help:      "Loads answered without a fetch, by reason.",
		}, []string{"category", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lead_wizard",
			Subsystem: "loader",
			Name:      "fetch_seconds",
			Help:      "Duration of guarded loader fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.skips, m.duration)
	}
	return m
}

func (m *Metrics) fetch(category, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(category, outcome).Inc()
	m.duration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *Metrics) skip(category, reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(category, reason).Inc()
}
