package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding/internal/backend"
	"onboarding/internal/domain"
	"onboarding/internal/expiring"
	"onboarding/internal/journey"
	"onboarding/internal/notify"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/resolver"
	"onboarding/internal/session"
	"onboarding/internal/transport/http/mocks"
	"onboarding/internal/verification"
	"onboarding/internal/wizard"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/testutil"
)

const (
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// tokenParser accepts any token and treats it as the client id.
type tokenParser struct{}

func (tokenParser) Parse(token string) (*session.AuthSession, error) {
	if token == "" || token == "expired" {
		return nil, session.ErrSessionRequired
	}
	return testutil.SessionFor(token), nil
}

// stubBackend serves checkpoint bodies from a map and keeps every
// verification pending.
type stubBackend struct {
	mu     sync.Mutex
	bodies map[domain.StepID]any
}

func (b *stubBackend) set(step domain.StepID, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[step] = body
}

func (b *stubBackend) FetchCheckpoint(_ context.Context, step domain.StepID) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.bodies[step]
	if !ok {
		return nil, &backend.CallError{Category: backend.CategoryNotReady, Status: http.StatusNotFound}
	}
	return json.Marshal(body)
}

func (b *stubBackend) InitiateVerification(_ context.Context, kind string, _ backend.InitiateRequest) (backend.InitiateResponse, error) {
	if kind == string(verification.KindUPICollect) {
		return backend.InitiateResponse{Reference: "ref-upi", UPIPayload: "upi://pay?pa=onboarding@bank&am=1"}, nil
	}
	return backend.InitiateResponse{Reference: "ref-" + kind, RedirectURL: "https://kyc.example.com/" + kind}, nil
}

func (b *stubBackend) VerificationStatus(context.Context, string, string) (backend.StatusResponse, error) {
	return backend.StatusResponse{Status: backend.StatusPending}, nil
}

type HandlerSuite struct {
	suite.Suite
	backend  *stubBackend
	registry *journey.Registry
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.backend = &stubBackend{bodies: make(map[domain.StepID]any)}
	store, err := expiring.New(expiring.NewMemoryBackend())
	s.Require().NoError(err)

	cfg := journey.DefaultConfig()
	cfg.Checkpoint.RetryBase = time.Millisecond
	for kind, kc := range cfg.Kinds {
		kc.Interval = 50 * time.Millisecond
		cfg.Kinds[kind] = kc
	}
	s.registry, err = journey.NewRegistry(s.backend, store,
		journey.WithConfig(cfg),
		journey.WithLogger(slog.New(slog.DiscardHandler)),
	)
	s.Require().NoError(err)
	s.T().Cleanup(s.registry.Close)

	s.promReg = prometheus.NewRegistry()
	s.metrics = metrics.NewWithRegisterer(s.promReg)
	s.router = NewRouter(Deps{
		Journeys: s.registry,
		Sessions: tokenParser{},
		Logger:   slog.New(slog.DiscardHandler),
		Metrics:  s.metrics,
		Gatherer: s.promReg,
	})
}

func (s *HandlerSuite) do(method, path string, body any, headers ...string) *httpResult {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("Authorization", "Bearer AB1234")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := testutil.DoRequest(s.router, req)
	return &httpResult{status: rr.Code, body: testutil.ReadBody(s.T(), rr)}
}

type httpResult struct {
	status int
	body   []byte
}

func decode[T any](t *testing.T, r *httpResult) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.body, &v), string(r.body))
	return v
}

func (s *HandlerSuite) verifyContacts() {
	res := s.do(http.MethodPut, "/v1/onboarding/profile", updateProfileRequest{Email: "ravi@example.com", Phone: "+919800000000"})
	s.Require().Equal(http.StatusOK, res.status, string(res.body))
}

func (s *HandlerSuite) start() wizard.Position {
	res := s.do(http.MethodPost, "/v1/onboarding/start", nil)
	s.Require().Equal(http.StatusOK, res.status, string(res.body))
	return decode[wizard.Position](s.T(), res)
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/onboarding/position")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))

	req = testutil.NewRequest(s.T(), http.MethodGet, "/v1/onboarding/position")
	req.Header.Set("Authorization", "Bearer expired")
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestPositionBeforeStart() {
	res := s.do(http.MethodGet, "/v1/onboarding/position", nil)
	s.Equal(http.StatusAccepted, res.status)
	s.Equal(string(dErrors.CodeNotReady), decode[map[string]string](s.T(), res)["error"])
}

func (s *HandlerSuite) TestStartWithoutContactsLandsOnEmail() {
	pos := s.start()
	s.Equal(resolver.ScreenEmail, pos.Screen)
	s.False(pos.CanRetreat)
}

func (s *HandlerSuite) TestProfileUpdateMarksContactsVerified() {
	res := s.do(http.MethodGet, "/v1/onboarding/profile", nil)
	s.Require().Equal(http.StatusOK, res.status)
	s.False(decode[profileResponse](s.T(), res).EmailVerified)

	s.verifyContacts()

	res = s.do(http.MethodGet, "/v1/onboarding/profile", nil)
	got := decode[profileResponse](s.T(), res)
	s.Equal("AB1234", got.ClientID)
	s.True(got.EmailVerified)
	s.True(got.MobileVerified)
}

func (s *HandlerSuite) TestProfileFromURLIsNotTrusted() {
	res := s.do(http.MethodPut, "/v1/onboarding/profile", updateProfileRequest{Email: "ravi@example.com", FromURL: true})
	s.Require().Equal(http.StatusOK, res.status)
	s.False(decode[profileResponse](s.T(), res).EmailVerified)
}

func (s *HandlerSuite) TestProfileUpdateValidation() {
	res := s.do(http.MethodPut, "/v1/onboarding/profile", updateProfileRequest{})
	s.Equal(http.StatusUnprocessableEntity, res.status)

	res = s.do(http.MethodPut, "/v1/onboarding/profile", updateProfileRequest{Email: "ravi@localhost"})
	s.Equal(http.StatusUnprocessableEntity, res.status)

	res = s.do(http.MethodPut, "/v1/onboarding/profile", map[string]any{"unknown": 1})
	s.Equal(http.StatusBadRequest, res.status)
}

func (s *HandlerSuite) TestStepSuccessAdvancesWizard() {
	s.verifyContacts()
	s.Equal(resolver.ScreenPAN, s.start().Screen)

	s.backend.set(domain.StepPAN, domain.PANPayload{PAN: "ABCDE1234F", Name: "Ravi Kumar"})
	res := s.do(http.MethodPost, "/v1/onboarding/steps/pan/success", nil)
	s.Require().Equal(http.StatusOK, res.status, string(res.body))
	s.Equal(resolver.ScreenAadhaar, decode[wizard.Position](s.T(), res).Screen)

	res = s.do(http.MethodGet, "/v1/onboarding/steps/PAN", nil)
	s.Require().Equal(http.StatusOK, res.status)
	var step struct {
		Step      domain.StepID     `json:"step"`
		Completed bool              `json:"completed"`
		Data      domain.PANPayload `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(res.body, &step))
	s.True(step.Completed)
	s.Equal("Ravi Kumar", step.Data.Name)
}

func (s *HandlerSuite) TestUnknownStep() {
	res := s.do(http.MethodGet, "/v1/onboarding/steps/not-a-step", nil)
	s.Equal(http.StatusBadRequest, res.status)
}

func (s *HandlerSuite) TestAdvanceOnCurrentScreenConflicts() {
	s.verifyContacts()
	s.start()
	res := s.do(http.MethodPost, "/v1/onboarding/advance", nil)
	s.Equal(http.StatusConflict, res.status)
}

func (s *HandlerSuite) TestStepFailureRaisesNoticeOnce() {
	body := stepFailureRequest{Message: "PAN already linked to another account"}
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/onboarding/steps/PAN/failure", body).status)
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/onboarding/steps/PAN/failure", body).status)

	res := s.do(http.MethodGet, "/v1/onboarding/notices", nil)
	s.Require().Equal(http.StatusOK, res.status)
	got := decode[map[string][]notify.Notice](s.T(), res)["notices"]
	s.Require().Len(got, 1)
	s.Equal(notify.PurposeStepError, got[0].Purpose)
	s.Equal("PAN already linked to another account", got[0].Message)

	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodPost, "/v1/onboarding/steps/PAN/failure", stepFailureRequest{}).status)
}

func (s *HandlerSuite) TestNoMismatch() {
	res := s.do(http.MethodGet, "/v1/onboarding/mismatch", nil)
	s.Require().Equal(http.StatusOK, res.status)
	s.False(decode[mismatchResponse](s.T(), res).Present)
}

func (s *HandlerSuite) TestMismatch() {
	s.backend.set(domain.StepAadhaarMismatchDetails, domain.MismatchPayload{PANName: "Ravi Kumar", AadhaarName: "R Kumar"})
	res := s.do(http.MethodGet, "/v1/onboarding/mismatch", nil)
	s.Require().Equal(http.StatusOK, res.status)
	got := decode[mismatchResponse](s.T(), res)
	s.True(got.Present)
	s.Require().NotNil(got.Data)
	s.Equal("R Kumar", got.Data.AadhaarName)
}

func (s *HandlerSuite) TestVerificationLifecycle() {
	res := s.do(http.MethodGet, "/v1/verifications/esign", nil)
	s.Equal(http.StatusNotFound, res.status)

	res = s.do(http.MethodPost, "/v1/verifications/esign", startRequest{ReturnURL: "https://app.example.com/done"}, "User-Agent", desktopUA)
	s.Require().Equal(http.StatusAccepted, res.status, string(res.body))
	started := decode[sessionResponse](s.T(), res)
	s.Equal(verification.KindESign, started.Kind)
	s.Equal(modeRedirect, started.Action.Mode)
	s.Equal("https://kyc.example.com/esign", started.Action.RedirectURL)
	s.False(started.Terminal)

	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/verifications/esign/message", nil).status)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/v1/verifications/esign", nil).status)
	res = s.do(http.MethodGet, "/v1/verifications/esign", nil)
	s.Require().Equal(http.StatusOK, res.status)
	got := decode[sessionResponse](s.T(), res)
	s.True(got.Terminal)
	s.True(got.CanRetry)

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/v1/verifications/esign/message", nil).status)
}

func (s *HandlerSuite) TestUPIActionFollowsDevice() {
	res := s.do(http.MethodPost, "/v1/verifications/upi_collect", nil, "User-Agent", mobileUA)
	s.Require().Equal(http.StatusAccepted, res.status, string(res.body))
	action := decode[sessionResponse](s.T(), res).Action
	s.Equal(modeIntent, action.Mode)
	s.Equal("upi://pay?pa=onboarding@bank&am=1", action.IntentURL)

	res = s.do(http.MethodPost, "/v1/verifications/upi_collect?retry=true", nil, "User-Agent", desktopUA)
	s.Require().Equal(http.StatusAccepted, res.status, string(res.body))
	action = decode[sessionResponse](s.T(), res).Action
	s.Equal(modeQR, action.Mode)
	s.Empty(action.IntentURL)
	s.NotEmpty(action.QRPayload)
}

func (s *HandlerSuite) TestVerificationInputValidation() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/verifications/passport", nil).status)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/verifications/esign?retry=maybe", nil).status)
}

func (s *HandlerSuite) TestLogout() {
	s.verifyContacts()
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/onboarding/logout", nil).status)
	s.Equal(0, s.registry.Len())
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/onboarding/logout", nil).status)
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/v1/onboarding/profile", nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
	body, err := io.ReadAll(rr.Body)
	s.Require().NoError(err)
	s.True(strings.Contains(string(body), `onboarding_http_requests_total{method="GET",route="/v1/onboarding/profile",status="200"} 1`), string(body))
}

//go:generate mockgen -source=router.go -destination=mocks/mocks.go -package=mocks Journeys
func TestJourneyErrorsAreTranslated(t *testing.T) {
	ctrl := gomock.NewController(t)
	journeys := mocks.NewMockJourneys(ctrl)
	router := NewRouter(Deps{Journeys: journeys, Sessions: tokenParser{}, Logger: slog.New(slog.DiscardHandler), Gatherer: prometheus.NewRegistry()})

	journeys.EXPECT().Get(gomock.Any()).Return(nil, session.ErrSessionRequired)
	req := testutil.NewRequest(t, http.MethodGet, "/v1/onboarding/position")
	req.Header.Set("Authorization", "Bearer AB1234")
	testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusUnauthorized, string(dErrors.CodeUnauthorized))

	journeys.EXPECT().Logout(gomock.Any()).Return(dErrors.New(dErrors.CodeInternal, "clear profile"))
	req = testutil.NewRequest(t, http.MethodPost, "/v1/onboarding/logout")
	req.Header.Set("Authorization", "Bearer AB1234")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.NotContains(t, testutil.UnmarshalErrorResponse(t, rr), "error_description")
}

func TestHealthAndReadiness(t *testing.T) {
	ready := error(nil)
	router := NewRouter(Deps{
		Sessions: tokenParser{},
		Logger:   slog.New(slog.DiscardHandler),
		Gatherer: prometheus.NewRegistry(),
		Ready:    func(context.Context) error { return ready },
	})

	testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz")))
	testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/readyz")))

	ready = dErrors.New(dErrors.CodeUnavailable, "redis down")
	testutil.AssertStatus(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/readyz")), http.StatusServiceUnavailable)
}

func TestRenderAction(t *testing.T) {
	upi := verification.Action{Reference: "r", UPIPayload: "upi://pay"}
	assert.Equal(t, actionView{Mode: modeIntent, Reference: "r", IntentURL: "upi://pay"}, renderAction(upi, true))
	assert.Equal(t, actionView{Mode: modeQR, Reference: "r", QRPayload: "upi://pay"}, renderAction(upi, false))

	redirect := verification.Action{Reference: "r", RedirectURL: "https://x"}
	assert.Equal(t, actionView{Mode: modeRedirect, Reference: "r", RedirectURL: "https://x"}, renderAction(redirect, true))
}
