package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification polling sessions.
type Metrics struct {
	// Terminal outcomes by kind and state
	Outcomes *prometheus.CounterVec

	// Status checks by kind and result: not_ready, transient, pending, terminal
	Checks *prometheus.CounterVec

	// Sessions currently initializing or polling
	ActiveSessions *prometheus.GaugeVec

	// Time from start to terminal state
	SessionDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_verification_outcomes_total",
			Help: "Verification session outcomes by kind and terminal state",
		}, []string{"kind", "state"}),

		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_verification_checks_total",
			Help: "Verification status checks by kind and result",
		}, []string{"kind", "result"}),

		ActiveSessions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "onboarding_verification_active_sessions",
			Help: "Verification sessions not yet in a terminal state",
		}, []string{"kind"}),

		SessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_verification_session_duration_seconds",
			Help:    "Wall-clock duration of verification sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
	}
}

// RecordOutcome records a terminal state and the session duration.
func (m *Metrics) RecordOutcome(kind, state string, d time.Duration) {
	if m != nil {
		m.Outcomes.WithLabelValues(kind, state).Inc()
		m.SessionDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// RecordCheck records one status check.
func (m *Metrics) RecordCheck(kind, result string) {
	if m != nil {
		m.Checks.WithLabelValues(kind, result).Inc()
	}
}

// SessionStarted increments the active gauge.
func (m *Metrics) SessionStarted(kind string) {
	if m != nil {
		m.ActiveSessions.WithLabelValues(kind).Inc()
	}
}

// SessionEnded decrements the active gauge.
func (m *Metrics) SessionEnded(kind string) {
	if m != nil {
		m.ActiveSessions.WithLabelValues(kind).Dec()
	}
}
