package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for checkpoint fetching and caching.
type Metrics struct {
	// Fetch outcomes by step: completed, incomplete, error
	FetchOutcome *prometheus.CounterVec

	// Remote fetch latency by step
	FetchLatency *prometheus.HistogramVec

	// Cache lookups by result: hit, miss
	CacheLookups *prometheus.CounterVec

	// Entries evicted after disuse
	Evictions prometheus.Counter
}

// New creates a Metrics instance with all checkpoint metrics registered.
func New() *Metrics {
	return &Metrics{
		FetchOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_checkpoint_fetch_outcomes_total",
			Help: "Checkpoint fetch outcomes by step",
		}, []string{"step", "outcome"}),

		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_checkpoint_fetch_duration_seconds",
			Help:    "Duration of remote checkpoint fetches including retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"step"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_checkpoint_cache_lookups_total",
			Help: "Checkpoint cache lookups by result",
		}, []string{"result"}),

		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_checkpoint_cache_evictions_total",
			Help: "Checkpoint records evicted after disuse",
		}),
	}
}

// IncrementOutcome records a fetch outcome.
func (m *Metrics) IncrementOutcome(step, outcome string) {
	if m != nil {
		m.FetchOutcome.WithLabelValues(step, outcome).Inc()
	}
}

// ObserveFetchLatency records a remote fetch duration.
func (m *Metrics) ObserveFetchLatency(step string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(step).Observe(d.Seconds())
	}
}

// RecordCacheHit records a fresh cache read.
func (m *Metrics) RecordCacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

// RecordCacheMiss records a read that went to the backend.
func (m *Metrics) RecordCacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// AddEvictions records evicted entries.
func (m *Metrics) AddEvictions(n int) {
	if m != nil && n > 0 {
		m.Evictions.Add(float64(n))
	}
}
