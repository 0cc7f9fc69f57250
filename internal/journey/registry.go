package journey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"onboarding/internal/checkpoint"
	checkpointMetrics "onboarding/internal/checkpoint/metrics"
	"onboarding/internal/events"
	"onboarding/internal/expiring"
	"onboarding/internal/notify"
	platformMetrics "onboarding/internal/platform/metrics"
	"onboarding/internal/profile"
	"onboarding/internal/session"
	"onboarding/internal/verification"
	verificationMetrics "onboarding/internal/verification/metrics"
	"onboarding/internal/wizard"
	dErrors "onboarding/pkg/domain-errors"
)

// Backend is the remote KYC service.
type Backend interface {
	checkpoint.Fetcher
	verification.Provider
}

// Config tunes the journeys a Registry builds.
type Config struct {
	Checkpoint  checkpoint.Config
	Kinds       map[verification.Kind]verification.KindConfig
	MinSettled  int
	ProfileTTL  time.Duration
	IdleTimeout time.Duration
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Checkpoint:  checkpoint.DefaultConfig(),
		Kinds:       verification.DefaultKinds(),
		MinSettled:  12,
		ProfileTTL:  profile.DefaultTTL,
		IdleTimeout: 30 * time.Minute,
	}
}

// Registry keeps one Journey per client id.
type Registry struct {
	backend   Backend
	store     *expiring.Store
	publisher events.Publisher
	cfg       Config
	logger    *slog.Logger
	opener    verification.HandleOpener
	cpMetrics *checkpointMetrics.Metrics
	vMetrics  *verificationMetrics.Metrics
	metrics   *platformMetrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	journeys map[string]*Journey
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithConfig overrides the journey settings.
func WithConfig(cfg Config) Option {
	return func(r *Registry) {
		r.cfg = cfg
	}
}

// WithHandleOpener sets how verification handles are opened.
func WithHandleOpener(o verification.HandleOpener) Option {
	return func(r *Registry) {
		r.opener = o
	}
}

// WithMetrics sets the per-package metric sinks.
func WithMetrics(cp *checkpointMetrics.Metrics, v *verificationMetrics.Metrics) Option {
	return func(r *Registry) {
		r.cpMetrics = cp
		r.vMetrics = v
	}
}

// WithJourneyMetrics sets the process-level journey gauges.
func WithJourneyMetrics(m *platformMetrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(backend Backend, store *expiring.Store, opts ...Option) (*Registry, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if store == nil {
		return nil, fmt.Errorf("expiring store is required")
	}
	r := &Registry{
		backend:  backend,
		store:    store,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		opener:   verification.TrackedOpener{},
		now:      time.Now,
		journeys: make(map[string]*Journey),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = events.NewLogPublisher(r.logger)
	}
	return r, nil
}

// Get returns the journey of the authenticated client, creating it on
// first use.
func (r *Registry) Get(ctx context.Context) (*Journey, error) {
	auth, err := session.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	j, ok := r.journeys[auth.ClientID]
	if !ok {
		j, err = r.build(auth)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.journeys[auth.ClientID] = j
		r.metrics.SetActiveJourneys(len(r.journeys))
	}
	r.mu.Unlock()

	j.touch(auth, r.now())
	if !ok {
		if err := j.Profile.Put(ctx, profile.FieldClientID, auth.ClientID); err != nil {
			r.logger.WarnContext(ctx, "store client id", "client_id", auth.ClientID, "error", err)
		}
		r.logger.InfoContext(ctx, "journey created", "client_id", auth.ClientID)
	}
	return j, nil
}

func (r *Registry) build(auth *session.AuthSession) (*Journey, error) {
	logger := r.logger.With("client_id", auth.ClientID)

	prof, err := profile.New(r.store, auth.ClientID, r.cfg.ProfileTTL)
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.New(r.backend,
		checkpoint.WithConfig(r.cfg.Checkpoint),
		checkpoint.WithLogger(logger),
		checkpoint.WithMetrics(r.cpMetrics),
	)
	if err != nil {
		return nil, err
	}
	notices := notify.New(notify.WithLogger(logger))
	ctrl, err := wizard.New(store, prof,
		wizard.WithNotifier(notices),
		wizard.WithPublisher(r.publisher),
		wizard.WithMinSettled(r.cfg.MinSettled),
		wizard.WithClientID(auth.ClientID),
		wizard.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	j := &Journey{
		ClientID:    auth.ClientID,
		Checkpoints: store,
		Wizard:      ctrl,
		Notices:     notices,
		Profile:     prof,
		publisher:   r.publisher,
		logger:      logger,
	}
	manager, err := verification.NewManager(r.backend,
		verification.WithKinds(r.cfg.Kinds),
		verification.WithHandleOpener(r.opener),
		verification.WithNameSource(j.governmentName),
		verification.WithOutcomeHandler(j.onOutcome),
		verification.WithLogger(logger),
		verification.WithMetrics(r.vMetrics),
	)
	if err != nil {
		return nil, err
	}
	j.Verifications = manager
	return j, nil
}

// Logout tears the client's journey down and clears its persisted fields.
func (r *Registry) Logout(ctx context.Context) error {
	auth, err := session.FromContext(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	j, ok := r.journeys[auth.ClientID]
	delete(r.journeys, auth.ClientID)
	r.metrics.SetActiveJourneys(len(r.journeys))
	r.mu.Unlock()
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "no onboarding journey for this client")
	}

	j.teardown()
	if err := j.Profile.Clear(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "clear profile")
	}
	if err := r.publisher.Publish(ctx, events.Event{Type: events.TypeJourneyReset, ClientID: auth.ClientID}); err != nil {
		r.logger.WarnContext(ctx, "publish journey reset", "error", err)
	}
	r.logger.InfoContext(ctx, "journey reset", "client_id", auth.ClientID)
	return nil
}

// Sweep evicts stale checkpoint records and drops journeys idle for longer
// than IdleTimeout. It returns the number of journeys dropped.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)
	var idle []*Journey

	r.mu.Lock()
	for id, j := range r.journeys {
		if j.idleSince().Before(cutoff) {
			idle = append(idle, j)
			delete(r.journeys, id)
			continue
		}
		j.Checkpoints.Sweep()
	}
	r.metrics.SetActiveJourneys(len(r.journeys))
	r.mu.Unlock()
	r.metrics.AddEvicted(len(idle))

	for _, j := range idle {
		j.teardown()
		r.logger.Info("journey evicted", "client_id", j.ClientID)
	}
	return len(idle)
}

// Run sweeps on interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len is the number of live journeys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.journeys)
}

// Close tears every journey down.
func (r *Registry) Close() {
	r.mu.Lock()
	journeys := r.journeys
	r.journeys = make(map[string]*Journey)
	r.metrics.SetActiveJourneys(0)
	r.mu.Unlock()
	for _, j := range journeys {
		j.teardown()
	}
}
