// Package backend is the HTTP client for the KYC backend: checkpoint and
// document records, and the initiate/status endpoints of out-of-band
// verifications. Responses are classified into the Category taxonomy here so
// callers never look at status codes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/domain"
	"onboarding/internal/session"
)

const maxResponseBytes = 4 << 20

var tracer = otel.Tracer("onboarding/internal/backend")

// Client calls the KYC backend on behalf of the session found in the
// request context.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New constructs a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// FetchCheckpoint returns the raw record body for step. Steps without a
// record yet yield a CategoryNotReady error.
func (c *Client) FetchCheckpoint(ctx context.Context, step domain.StepID) ([]byte, error) {
	resource := "checkpoints"
	if step.UsesDocumentEndpoint() {
		resource = "documents"
	}
	ctx, span := tracer.Start(ctx, "backend.fetch_checkpoint",
		trace.WithAttributes(attribute.String("checkpoint.step", step.String())))
	defer span.End()

	body, err := c.do(ctx, "fetch_checkpoint", http.MethodGet, "/kyc/"+resource+"/"+url.PathEscape(step.String()), nil)
	recordSpan(span, err)
	return body, err
}

// InitiateRequest starts an out-of-band verification.
type InitiateRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
}

// InitiateResponse describes the external action for the user: a redirect
// url, or a UPI collect payload to render as a QR code or intent link.
type InitiateResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	UPIPayload  string `json:"upi_payload,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// InitiateVerification calls the initialize endpoint of a verification kind.
func (c *Client) InitiateVerification(ctx context.Context, kind string, req InitiateRequest) (InitiateResponse, error) {
	ctx, span := tracer.Start(ctx, "backend.initiate_verification",
		trace.WithAttributes(attribute.String("verification.kind", kind)))
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("encode initiate request: %w", err)
	}
	body, err := c.do(ctx, "initiate_verification", http.MethodPost, "/kyc/verifications/"+url.PathEscape(kind), payload)
	recordSpan(span, err)
	if err != nil {
		return InitiateResponse{}, err
	}
	var resp InitiateResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Reference == "" {
		return InitiateResponse{}, newCallError(CategoryBadData, "initiate_verification", http.StatusOK, err)
	}
	return resp, nil
}

// Verification status values reported by the backend.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StatusResponse is one status check of a verification.
type StatusResponse struct {
	Status            string `json:"status"`
	Name              string `json:"name,omitempty"`
	AccountHolderName string `json:"account_holder_name,omitempty"`
	DocumentURL       string `json:"document_url,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	Message           string `json:"message,omitempty"`
}

// VerificationStatus polls the status endpoint. "Not yet" answers come back
// as CategoryNotReady errors.
func (c *Client) VerificationStatus(ctx context.Context, kind, reference string) (StatusResponse, error) {
	ctx, span := tracer.Start(ctx, "backend.verification_status",
		trace.WithAttributes(attribute.String("verification.kind", kind)))
	defer span.End()

	path := "/kyc/verifications/" + url.PathEscape(kind) + "/" + url.PathEscape(reference)
	body, err := c.do(ctx, "verification_status", http.MethodGet, path, nil)
	recordSpan(span, err)
	if err != nil {
		return StatusResponse{}, err
	}
	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusResponse{}, newCallError(CategoryBadData, "verification_status", http.StatusOK, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	sess, err := session.FromContext(ctx)
	if err != nil {
		return nil, newCallError(CategoryAuth, op, 0, err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newCallError(CategoryTransient, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newCallError(CategoryTransient, op, resp.StatusCode, err)
	}
	return classify(op, resp.StatusCode, body)
}

// classify maps the status-code contract onto the error taxonomy.
func classify(op string, status int, body []byte) ([]byte, error) {
	switch {
	case status == http.StatusNoContent || status == http.StatusNotFound:
		return nil, newCallError(CategoryNotReady, op, status, nil)
	case status >= 200 && status < 300:
		return body, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, withBody(newCallError(CategoryAuth, op, status, nil), body)
	case status >= 500:
		return nil, withBody(newCallError(CategoryTransient, op, status, nil), body)
	default:
		return nil, withBody(newCallError(CategoryValidation, op, status, nil), body)
	}
}

func withBody(ce *CallError, body []byte) *CallError {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		ce.Code = eb.ErrorCode
		ce.Message = eb.Message
	}
	return ce
}

func recordSpan(span trace.Span, err error) {
	if err == nil || IsNotReady(err) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(CategoryOf(err)))
}
