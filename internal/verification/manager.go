// Package verification drives out-of-band verification flows, such as
// DigiLocker redirects, e-sign and UPI collect requests, to a terminal state
// by polling the backend.
//
// A Manager keeps at most one session per kind. Starting, retrying or
// resetting a kind tears the previous session down before anything new is
// scheduled, so a stale session can never deliver a late completion.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/backend"
	"onboarding/internal/verification/metrics"
	dErrors "onboarding/pkg/domain-errors"
)

// StartRequest carries client details for the initialize call.
type StartRequest struct {
	ReturnURL string
	Mobile    bool
}

// Manager owns the verification sessions of one journey.
type Manager struct {
	provider Provider
	opener   HandleOpener
	kinds    map[Kind]KindConfig
	names    NameSource
	onDone   func(Outcome)
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[Kind]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithKinds overrides the per-kind budgets.
func WithKinds(kinds map[Kind]KindConfig) Option {
	return func(m *Manager) {
		m.kinds = kinds
	}
}

// WithHandleOpener sets how external handles are opened.
func WithHandleOpener(opener HandleOpener) Option {
	return func(m *Manager) {
		m.opener = opener
	}
}

// WithNameSource sets the registered name lookup used by name-matching kinds.
func WithNameSource(names NameSource) Option {
	return func(m *Manager) {
		m.names = names
	}
}

// WithOutcomeHandler sets the callback run once per session that reaches a
// terminal state other than cancellation.
func WithOutcomeHandler(fn func(Outcome)) Option {
	return func(m *Manager) {
		m.onDone = fn
	}
}

// NewManager constructs a Manager.
func NewManager(provider Provider, opts ...Option) (*Manager, error) {
	if provider == nil {
		return nil, fmt.Errorf("verification provider is required")
	}
	m := &Manager{
		provider: provider,
		opener:   TrackedOpener{},
		kinds:    DefaultKinds(),
		logger:   slog.Default(),
		sessions: make(map[Kind]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	for kind, cfg := range m.kinds {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("verification kind %s: %w", kind, err)
		}
	}
	return m, nil
}

// Start begins a session for kind, tearing down any previous one first.
// It returns once the external action is available.
func (m *Manager) Start(ctx context.Context, kind Kind, req StartRequest) (Snapshot, error) {
	cfg, ok := m.kinds[kind]
	if !ok {
		return Snapshot{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown verification kind %q", kind))
	}

	m.mu.Lock()
	if prev := m.sessions[kind]; prev != nil {
		prev.Cancel()
	}
	s := m.newSession(ctx, kind, cfg, req)
	m.sessions[kind] = s
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "verification started", "session_id", s.id, "kind", kind)
	return s.start()
}

// Retry restarts kind. Every terminal failure offers this.
func (m *Manager) Retry(ctx context.Context, kind Kind, req StartRequest) (Snapshot, error) {
	if snap, ok := m.State(kind); ok && !snap.State.IsTerminal() {
		m.logger.InfoContext(ctx, "verification retried while active", "kind", kind, "state", snap.State)
	}
	return m.Start(ctx, kind, req)
}

// State returns the latest session of kind.
func (m *Manager) State(kind Kind) (Snapshot, bool) {
	m.mu.Lock()
	s := m.sessions[kind]
	m.mu.Unlock()
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Notify triggers an immediate check of the active session of kind.
func (m *Manager) Notify(kind Kind) error {
	s, err := m.active(kind)
	if err != nil {
		return err
	}
	s.Notify()
	return nil
}

// Dismiss reports that the user closed the external handle of kind.
func (m *Manager) Dismiss(kind Kind) error {
	s, err := m.active(kind)
	if err != nil {
		return err
	}
	if s.cfg.Watchdog <= 0 {
		return dErrors.New(dErrors.CodeConflict, "verification kind does not watch its handle")
	}
	if !s.dismiss() {
		return dErrors.New(dErrors.CodeConflict, "verification handle cannot be dismissed")
	}
	return nil
}

// Cancel tears down the session of kind. The terminal snapshot stays
// readable so the client can offer a retry.
func (m *Manager) Cancel(kind Kind) {
	m.mu.Lock()
	s := m.sessions[kind]
	m.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Reset tears down every session and forgets them.
func (m *Manager) Reset() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[Kind]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Cancel()
	}
}

func (m *Manager) active(kind Kind) (*Session, error) {
	m.mu.Lock()
	s := m.sessions[kind]
	m.mu.Unlock()
	if s == nil || s.Snapshot().State.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no active %s verification", kind))
	}
	return s, nil
}

func (m *Manager) newSession(ctx context.Context, kind Kind, cfg KindConfig, req StartRequest) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		id:        uuid.NewString(),
		kind:      kind,
		cfg:       cfg,
		req:       backend.InitiateRequest{ReturnURL: req.ReturnURL, Mobile: req.Mobile},
		provider:  m.provider,
		opener:    m.opener,
		names:     m.names,
		onDone:    m.onDone,
		logger:    m.logger,
		metrics:   m.metrics,
		ctx:       sctx,
		cancel:    cancel,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     StateIdle,
		history:   []State{StateIdle},
		startedAt: time.Now(),
	}
}
