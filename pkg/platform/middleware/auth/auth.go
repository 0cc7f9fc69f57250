package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"onboarding/internal/session"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

// SessionParser turns a raw bearer token into an authenticated session.
type SessionParser interface {
	Parse(token string) (*session.AuthSession, error)
}

// RequireSession rejects requests without a usable bearer token and stores
// the parsed session in the request context.
func RequireSession(parser SessionParser, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, session.ErrSessionRequired)
				return
			}

			sess, err := parser.Parse(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(ctx, sess)))
		})
	}
}

// ClientID returns the authenticated client id, or "" outside an
// authenticated request.
func ClientID(ctx context.Context) string {
	sess, err := session.FromContext(ctx)
	if err != nil {
		return ""
	}
	return sess.ClientID
}
