package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/domain"
	"onboarding/internal/journey"
	"onboarding/internal/profile"
	"onboarding/internal/wizard"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/email"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

// OnboardingHandler serves the wizard, checkpoint and profile endpoints.
type OnboardingHandler struct {
	journeys Journeys
	logger   *slog.Logger
}

// NewOnboardingHandler creates an OnboardingHandler.
func NewOnboardingHandler(journeys Journeys, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{journeys: journeys, logger: logger}
}

// Register mounts the onboarding routes.
func (h *OnboardingHandler) Register(r chi.Router) {
	r.Route("/onboarding", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Get("/position", h.handlePosition)
		r.Post("/advance", h.handleAdvance)
		r.Post("/retreat", h.handleRetreat)
		r.Put("/requirements", h.handleRequirements)
		r.Get("/steps/{step}", h.handleStep)
		r.Post("/steps/{step}/success", h.handleStepSuccess)
		r.Post("/steps/{step}/failure", h.handleStepFailure)
		r.Get("/profile", h.handleProfile)
		r.Put("/profile", h.handleUpdateProfile)
		r.Get("/mismatch", h.handleMismatch)
		r.Get("/notices", h.handleNotices)
		r.Post("/logout", h.handleLogout)
	})
}

func (h *OnboardingHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.Start(r.Context())
	if err != nil {
		h.fail(w, r, "start wizard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *OnboardingHandler) handlePosition(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.Position()
	if err != nil {
		h.fail(w, r, "read position", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *OnboardingHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.Advance(r.Context())
	if err != nil {
		h.fail(w, r, "advance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *OnboardingHandler) handleRetreat(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.Retreat()
	if err != nil {
		h.fail(w, r, "retreat", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

type requirementsRequest struct {
	RequiresIncomeProof bool `json:"requires_income_proof"`
	RequiresPanUpload   bool `json:"requires_pan_upload"`
}

func (h *OnboardingHandler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[requirementsRequest](w, r, h.logger)
	if !ok {
		return
	}
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.SetRequirements(r.Context(), wizard.Requirements{
		RequiresIncomeProof: req.RequiresIncomeProof,
		RequiresPanUpload:   req.RequiresPanUpload,
	})
	if err != nil {
		h.fail(w, r, "set requirements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

type stepResponse struct {
	Step      domain.StepID  `json:"step"`
	Completed bool           `json:"completed"`
	Data      domain.Payload `json:"data,omitempty"`
}

func (h *OnboardingHandler) handleStep(w http.ResponseWriter, r *http.Request) {
	step, ok := h.step(w, r)
	if !ok {
		return
	}
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	rec, err := j.Checkpoints.Fetch(r.Context(), step)
	if err != nil {
		h.fail(w, r, "fetch checkpoint", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stepResponse{Step: rec.Step, Completed: rec.Completed, Data: rec.Data})
}

func (h *OnboardingHandler) handleStepSuccess(w http.ResponseWriter, r *http.Request) {
	step, ok := h.step(w, r)
	if !ok {
		return
	}
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	pos, err := j.Wizard.OnStepSuccess(r.Context(), step)
	if err != nil {
		h.fail(w, r, "step success", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

type stepFailureRequest struct {
	Message  string `json:"message"`
	Mismatch bool   `json:"mismatch"`
}

// handleStepFailure lets a form surface a submission failure as a notice.
func (h *OnboardingHandler) handleStepFailure(w http.ResponseWriter, r *http.Request) {
	step, ok := h.step(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[stepFailureRequest](w, r, h.logger)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "message is required"))
		return
	}
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	code := dErrors.CodeValidation
	if req.Mismatch {
		code = dErrors.CodeMismatch
	}
	j.Wizard.Report(step.String(), dErrors.New(code, req.Message))
	w.WriteHeader(http.StatusNoContent)
}

type profileResponse struct {
	ClientID       string `json:"client_id"`
	EmailVerified  bool   `json:"email_verified"`
	MobileVerified bool   `json:"mobile_verified"`
}

func (h *OnboardingHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	emailVerified, err := j.Profile.EmailVerified(ctx)
	if err != nil {
		h.fail(w, r, "read profile", err)
		return
	}
	mobileVerified, err := j.Profile.MobileVerified(ctx)
	if err != nil {
		h.fail(w, r, "read profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		ClientID:       j.ClientID,
		EmailVerified:  emailVerified,
		MobileVerified: mobileVerified,
	})
}

type updateProfileRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	// FromURL marks values taken from redirect parameters; they are kept
	// but do not count as verified.
	FromURL bool `json:"from_url"`
}

func (h *OnboardingHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[updateProfileRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Email == "" && req.Phone == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email or phone is required"))
		return
	}
	if req.Email != "" {
		addr, valid := email.Normalize(req.Email)
		if !valid {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email is not a valid address"))
			return
		}
		req.Email = addr
	}
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	put := j.Profile.Put
	if req.FromURL {
		put = j.Profile.PutRecovered
	}
	ctx := r.Context()
	for field, value := range map[profile.Field]string{profile.FieldEmail: req.Email, profile.FieldPhone: req.Phone} {
		if value == "" {
			continue
		}
		if err := put(ctx, field, strings.TrimSpace(value)); err != nil {
			h.fail(w, r, "update profile", err)
			return
		}
	}
	if req.Email != "" {
		h.logger.InfoContext(ctx, "profile email stored",
			"email", email.Mask(req.Email),
			"from_url", req.FromURL,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	h.handleProfile(w, r)
}

type mismatchResponse struct {
	Present bool                    `json:"present"`
	Data    *domain.MismatchPayload `json:"data,omitempty"`
}

func (h *OnboardingHandler) handleMismatch(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	data, present, err := j.Checkpoints.MismatchData(r.Context())
	if err != nil {
		h.fail(w, r, "fetch mismatch", err)
		return
	}
	resp := mismatchResponse{Present: present}
	if present {
		resp.Data = &data
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *OnboardingHandler) handleNotices(w http.ResponseWriter, r *http.Request) {
	j, ok := h.journey(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notices": j.Notices.Drain()})
}

func (h *OnboardingHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.journeys.Logout(r.Context()); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OnboardingHandler) step(w http.ResponseWriter, r *http.Request) (domain.StepID, bool) {
	step, err := domain.ParseStepID(chi.URLParam(r, "step"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown step"))
		return "", false
	}
	return step, true
}

func (h *OnboardingHandler) journey(w http.ResponseWriter, r *http.Request) (*journey.Journey, bool) {
	return resolveJourney(w, r, h.journeys, h.logger)
}

func (h *OnboardingHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logFailure(r, h.logger, op, err)
	httputil.WriteError(w, err)
}

func resolveJourney(w http.ResponseWriter, r *http.Request, journeys Journeys, logger *slog.Logger) (*journey.Journey, bool) {
	j, err := journeys.Get(r.Context())
	if err != nil {
		logFailure(r, logger, "resolve journey", err)
		httputil.WriteError(w, err)
		return nil, false
	}
	return j, true
}

// logFailure logs internal failures at error level and client-caused ones
// at warn.
func logFailure(r *http.Request, logger *slog.Logger, op string, err error) {
	ctx := r.Context()
	attrs := []any{"op", op, "error", err, "request_id", requestcontext.RequestID(ctx)}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		logger.ErrorContext(ctx, "request failed", attrs...)
	default:
		logger.WarnContext(ctx, "request rejected", attrs...)
	}
}
