// Package notify collects user-facing notices (toasts) for one journey and
// shows each (step, purpose) pair at most once until Reset.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Purpose distinguishes notices raised by the same step.
type Purpose string

const (
	PurposeStepError        Purpose = "step_error"
	PurposeSessionExpired   Purpose = "session_expired"
	PurposeMismatch         Purpose = "mismatch"
	PurposeVerification     Purpose = "verification"
	PurposeRetreatForbidden Purpose = "retreat_forbidden"
)

// Notice is one toast.
type Notice struct {
	Step    string    `json:"step"`
	Purpose Purpose   `json:"purpose"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type key struct {
	step    string
	purpose Purpose
}

// Notifier queues notices until drained.
type Notifier struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	shown   map[key]struct{}
	pending []Notice
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// New constructs a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		logger: slog.Default(),
		now:    time.Now,
		shown:  make(map[key]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify queues a notice unless the same (step, purpose) was already shown.
// It reports whether the notice was queued.
func (n *Notifier) Notify(step string, purpose Purpose, level Level, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := key{step: step, purpose: purpose}
	if _, dup := n.shown[k]; dup {
		return false
	}
	n.shown[k] = struct{}{}
	n.pending = append(n.pending, Notice{Step: step, Purpose: purpose, Level: level, Message: message, At: n.now()})
	n.logger.Debug("notice queued", "step", step, "purpose", purpose, "level", level)
	return true
}

// Forget allows (step, purpose) to be shown again, for example after the
// user fixed the underlying problem.
func (n *Notifier) Forget(step string, purpose Purpose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.shown, key{step: step, purpose: purpose})
}

// Drain returns and clears pending notices.
func (n *Notifier) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

// Reset forgets everything. Called on logout.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = make(map[key]struct{})
	n.pending = nil
}
