package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/verification"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

// VerificationHandler serves the polling verification endpoints.
type VerificationHandler struct {
	journeys Journeys
	logger   *slog.Logger
}

// NewVerificationHandler creates a VerificationHandler.
func NewVerificationHandler(journeys Journeys, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{journeys: journeys, logger: logger}
}

// Register mounts the verification routes.
func (h *VerificationHandler) Register(r chi.Router) {
	r.Route("/verifications/{kind}", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/", h.handleState)
		r.Post("/message", h.handleMessage)
		r.Post("/dismiss", h.handleDismiss)
		r.Delete("/", h.handleCancel)
	})
}

type startRequest struct {
	ReturnURL string `json:"return_url"`
}

// Display modes for the external action.
const (
	modeRedirect = "redirect"
	modeIntent   = "intent"
	modeQR       = "qr"
)

// actionView tells the client how to present the external action. UPI
// payloads open the payment app directly on mobile and render as a QR
// code elsewhere.
type actionView struct {
	Mode        string `json:"mode"`
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	IntentURL   string `json:"intent_url,omitempty"`
	QRPayload   string `json:"qr_payload,omitempty"`
}

type sessionResponse struct {
	ID        string               `json:"id"`
	Kind      verification.Kind    `json:"kind"`
	State     verification.State   `json:"state"`
	Reason    string               `json:"reason,omitempty"`
	Attempts  int                  `json:"attempts"`
	Terminal  bool                 `json:"terminal"`
	Value     string               `json:"value,omitempty"`
	History   []verification.State `json:"history"`
	Action    actionView           `json:"action"`
	CanRetry  bool                 `json:"can_retry"`
	StartedAt time.Time            `json:"started_at"`
}

func renderAction(a verification.Action, mobile bool) actionView {
	v := actionView{Reference: a.Reference}
	switch {
	case a.UPIPayload != "" && mobile:
		v.Mode = modeIntent
		v.IntentURL = a.UPIPayload
	case a.UPIPayload != "":
		v.Mode = modeQR
		v.QRPayload = a.UPIPayload
	default:
		v.Mode = modeRedirect
		v.RedirectURL = a.RedirectURL
	}
	return v
}

func toResponse(s verification.Snapshot, mobile bool) sessionResponse {
	terminal := s.State.IsTerminal()
	return sessionResponse{
		ID:        s.ID,
		Kind:      s.Kind,
		State:     s.State,
		Reason:    s.Reason,
		Attempts:  s.Attempts,
		Terminal:  terminal,
		Value:     s.Value,
		History:   s.History,
		Action:    renderAction(s.Action, mobile),
		CanRetry:  terminal && s.State != verification.StateCompleted,
		StartedAt: s.StartedAt,
	}
}

func (h *VerificationHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	retry := false
	if raw := r.URL.Query().Get("retry"); raw != "" {
		var err error
		if retry, err = strconv.ParseBool(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "retry must be a boolean"))
			return
		}
	}
	req, ok := httputil.DecodeJSON[startRequest](w, r, h.logger)
	if !ok {
		return
	}
	j, ok := resolveJourney(w, r, h.journeys, h.logger)
	if !ok {
		return
	}

	ctx := r.Context()
	mobile := requestcontext.Mobile(ctx)
	snap, err := j.StartVerification(ctx, kind, verification.StartRequest{ReturnURL: req.ReturnURL, Mobile: mobile}, retry)
	if err != nil {
		h.fail(w, r, "start verification", err)
		return
	}
	h.logger.InfoContext(ctx, "verification started",
		"kind", kind,
		"session_id", snap.ID,
		"retry", retry,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusAccepted, toResponse(snap, mobile))
}

func (h *VerificationHandler) handleState(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	j, ok := resolveJourney(w, r, h.journeys, h.logger)
	if !ok {
		return
	}
	snap, found := j.Verifications.State(kind)
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no verification session for this kind"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(snap, requestcontext.Mobile(r.Context())))
}

// handleMessage is the early completion signal sent when the external
// window reports back.
func (h *VerificationHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, "notify verification", func(m *verification.Manager, k verification.Kind) error {
		return m.Notify(k)
	})
}

func (h *VerificationHandler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, "dismiss verification", func(m *verification.Manager, k verification.Kind) error {
		return m.Dismiss(k)
	})
}

func (h *VerificationHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, "cancel verification", func(m *verification.Manager, k verification.Kind) error {
		m.Cancel(k)
		return nil
	})
}

func (h *VerificationHandler) signal(w http.ResponseWriter, r *http.Request, op string, fn func(*verification.Manager, verification.Kind) error) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	j, ok := resolveJourney(w, r, h.journeys, h.logger)
	if !ok {
		return
	}
	if err := fn(j.Verifications, kind); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VerificationHandler) kind(w http.ResponseWriter, r *http.Request) (verification.Kind, bool) {
	kind, err := verification.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown verification kind"))
		return "", false
	}
	return kind, true
}

func (h *VerificationHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logFailure(r, h.logger, op, err)
	httputil.WriteError(w, err)
}
