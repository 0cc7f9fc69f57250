// Package httptransport exposes the onboarding journey over HTTP. Handlers
// stay thin: they resolve the caller's journey and delegate to it.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onboarding/internal/journey"
	"onboarding/internal/platform/metrics"
	"onboarding/pkg/platform/middleware/auth"
	"onboarding/pkg/platform/middleware/metadata"
	"onboarding/pkg/platform/middleware/request"
	"onboarding/pkg/platform/middleware/requesttime"
)

// Journeys resolves the authenticated caller's journey.
type Journeys interface {
	Get(ctx context.Context) (*journey.Journey, error)
	Logout(ctx context.Context) error
}

// Deps are the collaborators the router needs.
type Deps struct {
	Journeys Journeys
	Sessions auth.SessionParser
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Ready reports dependency health for /readyz. Nil always reports ready.
	Ready func(ctx context.Context) error
}

// NewRouter wires every public endpoint.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	r.Use(observe(d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", readyHandler(d.Ready, d.Logger))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	onboarding := NewOnboardingHandler(d.Journeys, d.Logger)
	verifications := NewVerificationHandler(d.Journeys, d.Logger)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(chimw.Timeout(30 * time.Second))
		v1.Use(auth.RequireSession(d.Sessions, d.Logger))
		onboarding.Register(v1)
		verifications.Register(v1)
	})
	return r
}

// observe records request counts and latency by matched route pattern.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveRequest(route, r.Method, ww.Status(), time.Since(start))
		})
	}
}

func readyHandler(ready func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
