package journey

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/backend"
	"onboarding/internal/domain"
	"onboarding/internal/events"
	"onboarding/internal/expiring"
	"onboarding/internal/notify"
	platformMetrics "onboarding/internal/platform/metrics"
	"onboarding/internal/profile"
	"onboarding/internal/resolver"
	"onboarding/internal/verification"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/testutil"
)

// fakeBackend serves checkpoint bodies from a map and answers every
// verification status with a fixed response.
type fakeBackend struct {
	mu      sync.Mutex
	bodies  map[domain.StepID]any
	status  backend.StatusResponse
	pending bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{bodies: make(map[domain.StepID]any)}
}

func (f *fakeBackend) set(step domain.StepID, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[step] = body
}

func (f *fakeBackend) FetchCheckpoint(_ context.Context, step domain.StepID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[step]
	if !ok {
		return nil, &backend.CallError{Category: backend.CategoryNotReady, Status: 404}
	}
	return json.Marshal(body)
}

func (f *fakeBackend) InitiateVerification(_ context.Context, kind string, _ backend.InitiateRequest) (backend.InitiateResponse, error) {
	return backend.InitiateResponse{Reference: "ref-" + kind, UPIPayload: "upi://pay?pa=onboarding@bank"}, nil
}

func (f *fakeBackend) VerificationStatus(context.Context, string, string) (backend.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		return backend.StatusResponse{Status: backend.StatusPending}, nil
	}
	return f.status, nil
}

func authed(clientID string) context.Context {
	return testutil.AuthContext(context.Background(), clientID)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Checkpoint.RetryBase = time.Millisecond
	cfg.Kinds = map[verification.Kind]verification.KindConfig{
		verification.KindAadhaar:    {Interval: 10 * time.Millisecond, Timeout: time.Second, Completion: verification.FieldName},
		verification.KindESign:      {Interval: 10 * time.Millisecond, Timeout: time.Second, Completion: verification.FieldDocumentURL},
		verification.KindUPICollect: {Interval: 10 * time.Millisecond, Timeout: time.Second, Completion: verification.FieldAccountHolderName, MatchName: true},
	}
	return cfg
}

func newRegistry(t *testing.T, fb *fakeBackend, opts ...Option) (*Registry, *events.MemoryPublisher) {
	t.Helper()
	store, err := expiring.New(expiring.NewMemoryBackend())
	require.NoError(t, err)
	pub := events.NewMemoryPublisher()
	opts = append([]Option{WithConfig(fastConfig()), WithPublisher(pub)}, opts...)
	r, err := NewRegistry(fb, store, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, pub
}

func TestGetRequiresSession(t *testing.T) {
	r, _ := newRegistry(t, newFakeBackend())
	_, err := r.Get(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGetReusesJourneyPerClient(t *testing.T) {
	r, _ := newRegistry(t, newFakeBackend())

	a, err := r.Get(authed("AB1234"))
	require.NoError(t, err)
	again, err := r.Get(authed("AB1234"))
	require.NoError(t, err)
	other, err := r.Get(authed("CD5678"))
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, r.Len())

	id, ok, err := a.Profile.Trusted(authed("AB1234"), profile.FieldClientID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "AB1234", id)
}

func verifiedContacts(t *testing.T, ctx context.Context, j *Journey) {
	t.Helper()
	require.NoError(t, j.Profile.Put(ctx, profile.FieldEmail, "ravi@example.com"))
	require.NoError(t, j.Profile.Put(ctx, profile.FieldPhone, "+919800000000"))
}

func TestCompletedVerificationAdvancesWizard(t *testing.T) {
	fb := newFakeBackend()
	fb.set(domain.StepPAN, domain.PANPayload{PAN: "ABCDE1234F", Name: "Ravi Kumar"})
	fb.pending = true
	r, pub := newRegistry(t, fb)

	ctx := authed("AB1234")
	j, err := r.Get(ctx)
	require.NoError(t, err)
	verifiedContacts(t, ctx, j)

	pos, err := j.Wizard.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, resolver.ScreenAadhaar, pos.Screen)

	_, err = j.StartVerification(ctx, verification.KindAadhaar, verification.StartRequest{}, false)
	require.NoError(t, err)

	fb.set(domain.StepAadhaar, domain.AadhaarPayload{Name: "Ravi Kumar"})
	fb.mu.Lock()
	fb.pending = false
	fb.status = backend.StatusResponse{Status: backend.StatusCompleted, Name: "Ravi Kumar"}
	fb.mu.Unlock()

	assert.Eventually(t, func() bool {
		p, err := j.Wizard.Position()
		return err == nil && p.Screen == resolver.ScreenInvestmentSegment
	}, 2*time.Second, 10*time.Millisecond)

	var types []events.Type
	for _, e := range pub.Events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TypeVerificationOutcome)
	assert.Contains(t, types, events.TypeStepCompleted)
}

func TestUPIHolderMismatchRaisesNotice(t *testing.T) {
	fb := newFakeBackend()
	fb.set(domain.StepPAN, domain.PANPayload{PAN: "ABCDE1234F", Name: "Ravi Kumar"})
	fb.status = backend.StatusResponse{Status: backend.StatusCompleted, AccountHolderName: "JANE SMITH"}
	r, _ := newRegistry(t, fb)

	ctx := authed("AB1234")
	j, err := r.Get(ctx)
	require.NoError(t, err)

	_, err = j.StartVerification(ctx, verification.KindUPICollect, verification.StartRequest{}, false)
	require.NoError(t, err)

	var notices []notify.Notice
	require.Eventually(t, func() bool {
		notices = append(notices, j.Notices.Drain()...)
		return len(notices) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, notify.PurposeMismatch, notices[0].Purpose)
	assert.Equal(t, "upi_collect", notices[0].Step)

	name, ok, err := j.Profile.Trusted(ctx, profile.FieldNameCache)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ravi Kumar", name)
}

func TestLogoutResetsJourney(t *testing.T) {
	fb := newFakeBackend()
	fb.pending = true
	r, pub := newRegistry(t, fb)

	ctx := authed("AB1234")
	j, err := r.Get(ctx)
	require.NoError(t, err)
	verifiedContacts(t, ctx, j)
	_, err = j.StartVerification(ctx, verification.KindESign, verification.StartRequest{}, false)
	require.NoError(t, err)

	require.NoError(t, r.Logout(ctx))
	assert.Equal(t, 0, r.Len())

	_, ok := j.Verifications.State(verification.KindESign)
	assert.False(t, ok)
	verified, err := j.Profile.EmailVerified(ctx)
	require.NoError(t, err)
	assert.False(t, verified)

	last := pub.Events()[len(pub.Events())-1]
	assert.Equal(t, events.TypeJourneyReset, last.Type)

	assert.True(t, dErrors.HasCode(r.Logout(ctx), dErrors.CodeNotFound))
}

func TestSweepDropsIdleJourneys(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := platformMetrics.NewWithRegisterer(prometheus.NewRegistry())
	r, _ := newRegistry(t, newFakeBackend(), WithClock(func() time.Time { return now }), WithJourneyMetrics(m))

	_, err := r.Get(authed("AB1234"))
	require.NoError(t, err)
	now = now.Add(20 * time.Minute)
	_, err = r.Get(authed("CD5678"))
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ActiveJourneys))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.JourneysEvicted))
}
