package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-level Prometheus metrics for the HTTP surface
// and the journey registry.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveJourneys  prometheus.Gauge
	JourneysEvicted prometheus.Counter
}

// New creates and registers the metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_http_requests_total",
			Help: "HTTP requests served, by route and status",
		}, []string{"route", "method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ActiveJourneys: f.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_active_journeys",
			Help: "Journeys currently held in memory",
		}),
		JourneysEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_journeys_evicted_total",
			Help: "Idle journeys evicted by the janitor",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetActiveJourneys sets the live journey gauge.
func (m *Metrics) SetActiveJourneys(n int) {
	if m == nil {
		return
	}
	m.ActiveJourneys.Set(float64(n))
}

// AddEvicted counts journeys evicted by a sweep.
func (m *Metrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JourneysEvicted.Add(float64(n))
}
