// Package journey bundles the per-client onboarding state (checkpoint cache,
// wizard position, verification sessions, notices and profile) and keeps
// one bundle per authenticated client.
package journey

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"onboarding/internal/checkpoint"
	"onboarding/internal/domain"
	"onboarding/internal/events"
	"onboarding/internal/notify"
	"onboarding/internal/profile"
	"onboarding/internal/session"
	"onboarding/internal/verification"
	"onboarding/internal/wizard"
)

// Journey is the onboarding state of one client.
type Journey struct {
	ClientID      string
	Checkpoints   *checkpoint.Store
	Wizard        *wizard.Controller
	Verifications *verification.Manager
	Notices       *notify.Notifier
	Profile       *profile.Profile

	publisher events.Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	auth     *session.AuthSession
	lastSeen time.Time
}

// touch records activity and the latest auth session.
func (j *Journey) touch(auth *session.AuthSession, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.auth = auth
	j.lastSeen = now
}

func (j *Journey) idleSince() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeen
}

// background returns a context carrying the latest auth session, for work
// that outlives the request that started it.
func (j *Journey) background() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	return session.WithSession(context.Background(), j.auth)
}

// StartVerification starts or retries kind and re-arms its notices.
func (j *Journey) StartVerification(ctx context.Context, kind verification.Kind, req verification.StartRequest, retry bool) (verification.Snapshot, error) {
	j.Notices.Forget(string(kind), notify.PurposeVerification)
	j.Notices.Forget(string(kind), notify.PurposeMismatch)
	if retry {
		return j.Verifications.Retry(ctx, kind, req)
	}
	return j.Verifications.Start(ctx, kind, req)
}

// verificationSteps maps each kind to the checkpoint its completion feeds.
var verificationSteps = map[verification.Kind]domain.StepID{
	verification.KindAadhaar:    domain.StepAadhaar,
	verification.KindESign:      domain.StepESign,
	verification.KindUPICollect: domain.StepCompleteUPIValidation,
}

// onOutcome advances the wizard on completion and surfaces failures.
func (j *Journey) onOutcome(out verification.Outcome) {
	ctx := j.background()
	if err := j.publisher.Publish(ctx, events.Event{
		Type:     events.TypeVerificationOutcome,
		ClientID: j.ClientID,
		Kind:     string(out.Kind),
		State:    string(out.State),
		Reason:   out.Reason,
	}); err != nil {
		j.logger.Warn("publish verification outcome", "error", err)
	}

	if out.State != verification.StateCompleted {
		purpose := notify.PurposeVerification
		if out.Reason == verification.ReasonNameMismatch || out.Reason == verification.ReasonNameUnavailable {
			purpose = notify.PurposeMismatch
		}
		j.Notices.Notify(string(out.Kind), purpose, notify.LevelError, verificationMessage(out))
		return
	}

	step, ok := verificationSteps[out.Kind]
	if !ok {
		return
	}
	if _, err := j.Wizard.OnStepSuccess(ctx, step); err != nil {
		j.logger.Warn("advance after verification", "kind", out.Kind, "error", err)
	}
}

func verificationMessage(out verification.Outcome) string {
	switch {
	case out.State == verification.StateTimedOut:
		return "Verification took too long. Please try again."
	case out.Reason == verification.ReasonDismissed:
		return "The verification window was closed before it finished. Please try again."
	case out.Reason == verification.ReasonNameMismatch:
		return "The bank account holder name does not match your registered name. Please enter your bank details manually."
	case out.Reason == verification.ReasonUnauthorized:
		return "Your session has expired. Please restart the onboarding process."
	}
	return "Verification failed. Please try again."
}

// governmentName derives the registered name from the PAN record, falling
// back to the Aadhaar record.
func (j *Journey) governmentName(ctx context.Context) (string, error) {
	return j.Profile.GovernmentName(ctx, func(ctx context.Context) (string, error) {
		data, err := j.Checkpoints.StepData(ctx, domain.StepPAN)
		if err != nil {
			return "", err
		}
		if pan, ok := data.(domain.PANPayload); ok && pan.Name != "" {
			return pan.Name, nil
		}
		data, err = j.Checkpoints.StepData(ctx, domain.StepAadhaar)
		if err != nil {
			return "", err
		}
		if a, ok := data.(domain.AadhaarPayload); ok {
			return a.Name, nil
		}
		return "", nil
	})
}

// teardown stops every session and clears cached state.
func (j *Journey) teardown() {
	j.Verifications.Reset()
	j.Wizard.Reset()
	j.Notices.Reset()
	j.Checkpoints.InvalidateAll()
}
