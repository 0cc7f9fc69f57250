package verification

import (
	"context"
	"sync"
)

// Action is what the user must do outside the wizard.
type Action struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	UPIPayload  string `json:"upi_payload,omitempty"`
}

// Handle is the external surface opened for an action, such as a popup
// window or a rendered QR code.
type Handle interface {
	Dismissed() bool
	Close()
}

// HandleOpener opens the external surface for an action.
type HandleOpener interface {
	Open(ctx context.Context, kind Kind, action Action) (Handle, error)
}

// TrackedHandle is a Handle whose dismissal is reported by the client.
type TrackedHandle struct {
	mu        sync.Mutex
	dismissed bool
	closed    bool
}

// Dismiss marks the handle dismissed by the user.
func (h *TrackedHandle) Dismiss() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dismissed = true
}

// Dismissed reports whether the user dismissed the handle.
func (h *TrackedHandle) Dismissed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dismissed
}

// Close releases the handle.
func (h *TrackedHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// Closed reports whether Close was called.
func (h *TrackedHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// TrackedOpener opens TrackedHandles.
type TrackedOpener struct{}

// Open returns a fresh TrackedHandle.
func (TrackedOpener) Open(context.Context, Kind, Action) (Handle, error) {
	return &TrackedHandle{}, nil
}
