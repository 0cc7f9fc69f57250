package testutil

import (
	"context"
	"strings"
	"time"

	"onboarding/internal/session"
)

// SessionFor builds an authenticated onboarding session for clientID that
// stays valid for an hour.
func SessionFor(clientID string) *session.AuthSession {
	return &session.AuthSession{
		Token:     "token-" + strings.ToLower(clientID),
		Subject:   strings.ToLower(clientID),
		ClientID:  strings.ToUpper(clientID),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// AuthContext returns ctx carrying a session for clientID.
func AuthContext(ctx context.Context, clientID string) context.Context {
	return session.WithSession(ctx, SessionFor(clientID))
}
