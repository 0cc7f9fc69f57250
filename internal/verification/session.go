package verification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/backend"
	"onboarding/internal/namematch"
	"onboarding/internal/verification/metrics"
	dErrors "onboarding/pkg/domain-errors"
)

var tracer = otel.Tracer("onboarding/verification")

// State is a step of the session lifecycle.
type State string

const (
	StateIdle                   State = "idle"
	StateInitializing           State = "initializing"
	StateAwaitingExternalAction State = "awaiting_external_action"
	StatePolling                State = "polling"
	StateCompleted              State = "completed"
	StateFailed                 State = "failed"
	StateTimedOut               State = "timed_out"
)

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Failure reasons.
const (
	ReasonUnauthorized    = "unauthorized"
	ReasonRejected        = "rejected"
	ReasonProviderFailed  = "provider_failed"
	ReasonDismissed       = "dismissed"
	ReasonNameMismatch    = "name_mismatch"
	ReasonNameUnavailable = "name_unavailable"
	ReasonCancelled       = "cancelled"
	ReasonInitFailed      = "initialize_failed"
	ReasonHandleFailed    = "handle_failed"
	ReasonAttempts        = "max_attempts"
	ReasonDeadline        = "deadline"
)

// Provider talks to the verification endpoints of the backend.
type Provider interface {
	InitiateVerification(ctx context.Context, kind string, req backend.InitiateRequest) (backend.InitiateResponse, error)
	VerificationStatus(ctx context.Context, kind, reference string) (backend.StatusResponse, error)
}

// NameSource returns the government-ID name that bank-linking kinds must
// match.
type NameSource func(ctx context.Context) (string, error)

// Outcome is the terminal result of a session.
type Outcome struct {
	SessionID string
	Kind      Kind
	State     State
	Reason    string
	// Value is the completion field reported by the provider.
	Value    string
	Response backend.StatusResponse
	Attempts int
	Err      error
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"started_at"`
	Action    Action    `json:"action"`
	Value     string    `json:"value,omitempty"`
	History   []State   `json:"history"`
}

// Session drives one verification from initialization to a terminal state.
// All of its timers belong to the polling goroutine and stop before the
// terminal state becomes visible.
type Session struct {
	id       string
	kind     Kind
	cfg      KindConfig
	req      backend.InitiateRequest
	provider Provider
	opener   HandleOpener
	names    NameSource
	onDone   func(Outcome)
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	state     State
	history   []State
	reason    string
	attempts  int
	startedAt time.Time
	action    Action
	handle    Handle
	value     string
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(to)
}

func (s *Session) setStateLocked(to State) {
	if s.state == to {
		return
	}
	s.logger.Debug("verification transition", "session_id", s.id, "kind", s.kind, "from", s.state, "to", to)
	s.state = to
	s.history = append(s.history, to)
}

// Snapshot returns the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Kind:      s.kind,
		State:     s.state,
		Reason:    s.reason,
		Attempts:  s.attempts,
		StartedAt: s.startedAt,
		Action:    s.action,
		Value:     s.value,
		History:   append([]State(nil), s.history...),
	}
}

// Notify requests an immediate status check, as when the external page
// posts back that the user finished.
func (s *Session) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Cancel tears the session down and waits until every timer is stopped
// and the handle is closed. No callback fires for a cancelled session.
func (s *Session) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) dismiss() bool {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	d, ok := h.(interface{ Dismiss() })
	if ok {
		d.Dismiss()
	}
	return ok
}

// start initializes the session and launches polling. It returns once the
// external action is known or the session failed.
func (s *Session) start() (Snapshot, error) {
	s.metrics.SessionStarted(string(s.kind))
	s.transition(StateInitializing)

	resp, err := s.initialize()
	if err != nil {
		out := s.initFailure(err)
		s.finish(out)
		return s.Snapshot(), out.Err
	}

	action := Action{Reference: resp.Reference, RedirectURL: resp.RedirectURL, UPIPayload: resp.UPIPayload}
	handle, err := s.opener.Open(s.ctx, s.kind, action)
	if err != nil && s.ctx.Err() != nil {
		out := s.failed(ReasonCancelled, s.ctx.Err())
		s.finish(out)
		return s.Snapshot(), out.Err
	}
	if err != nil {
		out := s.failed(ReasonHandleFailed, dErrors.Wrap(err, dErrors.CodeInternal, "could not open verification window"))
		s.finish(out)
		return s.Snapshot(), out.Err
	}

	s.mu.Lock()
	s.action = action
	s.handle = handle
	s.setStateLocked(StateAwaitingExternalAction)
	s.mu.Unlock()

	go s.run()
	return s.Snapshot(), nil
}

func (s *Session) initialize() (backend.InitiateResponse, error) {
	ctx, span := tracer.Start(s.ctx, "verification.initialize",
		trace.WithAttributes(attribute.String("verification.kind", string(s.kind))))
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.cfg.InitRetries), ctx)

	return backoff.RetryWithData(func() (backend.InitiateResponse, error) {
		if err := ctx.Err(); err != nil {
			return backend.InitiateResponse{}, backoff.Permanent(err)
		}
		resp, err := s.provider.InitiateVerification(ctx, string(s.kind), s.req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !backend.IsRetryable(err) {
			return resp, backoff.Permanent(err)
		}
		s.logger.WarnContext(ctx, "verification initialize retrying", "kind", s.kind, "error", err)
		return resp, err
	}, b)
}

func (s *Session) initFailure(err error) Outcome {
	if s.ctx.Err() != nil {
		return s.failed(ReasonCancelled, s.ctx.Err())
	}
	switch backend.CategoryOf(err) {
	case backend.CategoryAuth:
		return s.failed(ReasonUnauthorized, dErrors.Wrap(err, dErrors.CodeUnauthorized, "session expired, please restart the onboarding process"))
	case backend.CategoryValidation:
		return s.failed(ReasonRejected, dErrors.Wrap(err, dErrors.CodeValidation, "verification could not be started"))
	default:
		return s.failed(ReasonInitFailed, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification service unavailable"))
	}
}

func (s *Session) run() {
	s.finish(s.poll())
}

// poll owns the interval ticker, the watchdog and the deadline. All of them
// are released when it returns.
func (s *Session) poll() Outcome {
	deadline, cancel := context.WithDeadline(s.ctx, s.startedAt.Add(s.cfg.Timeout))
	defer cancel()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var watchdog <-chan time.Time
	if s.cfg.Watchdog > 0 {
		w := time.NewTicker(s.cfg.Watchdog)
		defer w.Stop()
		watchdog = w.C
	}

	s.transition(StatePolling)
	if out, ok := s.step(deadline); ok {
		return out
	}
	for {
		select {
		case <-deadline.Done():
			return s.expired()
		case <-ticker.C:
		case <-s.notify:
		case <-watchdog:
			if !s.handleDismissed() {
				continue
			}
			if out, ok := s.step(deadline); ok {
				return out
			}
			if deadline.Err() != nil {
				return s.expired()
			}
			return s.failed(ReasonDismissed, dErrors.New(dErrors.CodeValidation, "verification window was closed before completion"))
		}
		if out, ok := s.step(deadline); ok {
			return out
		}
	}
}

func (s *Session) handleDismissed() bool {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	return h != nil && h.Dismissed()
}

// step runs one check and applies the attempt ceiling.
func (s *Session) step(ctx context.Context) (Outcome, bool) {
	if ctx.Err() != nil {
		return s.expired(), true
	}
	out, ok := s.check(ctx)
	if ok {
		return out, true
	}
	if ctx.Err() != nil {
		return s.expired(), true
	}
	s.mu.Lock()
	attempts := s.attempts
	s.mu.Unlock()
	if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
		return s.timedOut(ReasonAttempts), true
	}
	return Outcome{}, false
}

func (s *Session) check(ctx context.Context) (Outcome, bool) {
	s.mu.Lock()
	s.attempts++
	ref := s.action.Reference
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "verification.check",
		trace.WithAttributes(attribute.String("verification.kind", string(s.kind))))
	defer span.End()

	resp, err := s.provider.VerificationStatus(ctx, string(s.kind), ref)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, false
		}
		switch backend.CategoryOf(err) {
		case backend.CategoryNotReady:
			s.metrics.RecordCheck(string(s.kind), "not_ready")
			return Outcome{}, false
		case backend.CategoryAuth:
			s.metrics.RecordCheck(string(s.kind), "terminal")
			return s.failed(ReasonUnauthorized, dErrors.Wrap(err, dErrors.CodeUnauthorized, "session expired, please restart the onboarding process")), true
		case backend.CategoryValidation:
			s.metrics.RecordCheck(string(s.kind), "terminal")
			return s.failed(ReasonRejected, dErrors.Wrap(err, dErrors.CodeValidation, "verification was rejected")), true
		default:
			s.metrics.RecordCheck(string(s.kind), "transient")
			s.logger.DebugContext(ctx, "verification check failed", "kind", s.kind, "error", err)
			return Outcome{}, false
		}
	}

	if resp.Status == backend.StatusFailed {
		s.metrics.RecordCheck(string(s.kind), "terminal")
		reason := resp.ErrorCode
		if reason == "" {
			reason = ReasonProviderFailed
		}
		msg := resp.Message
		if msg == "" {
			msg = "verification failed"
		}
		out := s.failed(reason, dErrors.New(dErrors.CodeValidation, msg))
		out.Response = resp
		return out, true
	}

	value := s.cfg.Completion.valueOf(resp)
	if value == "" {
		s.metrics.RecordCheck(string(s.kind), "pending")
		return Outcome{}, false
	}
	s.metrics.RecordCheck(string(s.kind), "completed")
	return s.complete(ctx, resp, value), true
}

func (s *Session) complete(ctx context.Context, resp backend.StatusResponse, value string) Outcome {
	if s.cfg.MatchName && s.names != nil {
		want, err := s.names(ctx)
		if err != nil || want == "" {
			cause := dErrors.New(dErrors.CodeMismatch, "registered name is not available for comparison")
			if err != nil {
				cause = dErrors.Wrap(err, dErrors.CodeMismatch, "registered name is not available for comparison")
			}
			out := s.failed(ReasonNameUnavailable, cause)
			out.Response = resp
			return out
		}
		if !namematch.Matches(want, value) {
			s.logger.InfoContext(ctx, "bank holder name mismatch", "kind", s.kind, "session_id", s.id)
			out := s.failed(ReasonNameMismatch, dErrors.New(dErrors.CodeMismatch, "bank account holder name does not match your registered name"))
			out.Response = resp
			return out
		}
	}
	return Outcome{
		SessionID: s.id,
		Kind:      s.kind,
		State:     StateCompleted,
		Value:     value,
		Response:  resp,
	}
}

func (s *Session) failed(reason string, err error) Outcome {
	return Outcome{SessionID: s.id, Kind: s.kind, State: StateFailed, Reason: reason, Err: err}
}

func (s *Session) timedOut(reason string) Outcome {
	return Outcome{
		SessionID: s.id,
		Kind:      s.kind,
		State:     StateTimedOut,
		Reason:    reason,
		Err:       dErrors.New(dErrors.CodeTimeout, "verification timed out, please try again"),
	}
}

// expired distinguishes cancellation from the wall-clock budget running out.
func (s *Session) expired() Outcome {
	if s.ctx.Err() != nil {
		return s.failed(ReasonCancelled, s.ctx.Err())
	}
	return s.timedOut(ReasonDeadline)
}

// finish is the single cleanup path: it closes the handle, publishes the
// terminal state, releases waiters and then runs the callback.
func (s *Session) finish(out Outcome) {
	s.mu.Lock()
	handle := s.handle
	out.Attempts = s.attempts
	s.reason = out.Reason
	s.value = out.Value
	s.setStateLocked(out.State)
	s.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	s.cancel()
	s.metrics.SessionEnded(string(s.kind))
	s.metrics.RecordOutcome(string(s.kind), string(out.State), time.Since(s.startedAt))
	close(s.done)

	if out.Reason == ReasonCancelled {
		s.logger.Info("verification cancelled", "session_id", s.id, "kind", s.kind)
		return
	}
	s.logger.Info("verification ended", "session_id", s.id, "kind", s.kind,
		"state", out.State, "reason", out.Reason, "attempts", out.Attempts)
	if s.onDone != nil {
		s.onDone(out)
	}
}
