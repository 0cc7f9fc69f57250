// Package session models the bearer-token session every backend call runs
// under. A missing or expired session is a hard precondition failure.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "onboarding/pkg/domain-errors"
)

// AuthSession is the caller's bearer token and the identifiers derived from
// it.
type AuthSession struct {
	Token     string
	Subject   string
	ClientID  string
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Claims are the token claims the onboarding flow relies on.
type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// Parser turns bearer tokens into sessions. With a signing key it verifies
// HMAC signatures; without one it only decodes, leaving verification to the
// backend that issued the token.
type Parser struct {
	signingKey []byte
	now        func() time.Time
}

// NewParser builds a Parser. An empty key disables signature checks.
func NewParser(signingKey string) *Parser {
	return &Parser{signingKey: []byte(signingKey), now: time.Now}
}

// ErrSessionRequired is returned when no usable session exists.
var ErrSessionRequired = dErrors.New(dErrors.CodeUnauthorized, "session expired, please restart the onboarding process")

// Parse validates a raw bearer token.
func (p *Parser) Parse(token string) (*AuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionRequired
	}

	claims := &Claims{}
	var err error
	if len(p.signingKey) > 0 {
		_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return p.signingKey, nil
		}, jwt.WithTimeFunc(p.now))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionRequired
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session token")
	}

	sess := &AuthSession{
		Token:    token,
		Subject:  claims.Subject,
		ClientID: strings.ToUpper(strings.TrimSpace(claims.ClientID)),
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if sess.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session token has no subject")
	}
	if sess.ClientID == "" {
		sess.ClientID = strings.ToUpper(sess.Subject)
	}
	if sess.Expired(p.now()) {
		return nil, ErrSessionRequired
	}
	return sess, nil
}

type sessionKey struct{}

// WithSession stores the session in the context.
func WithSession(ctx context.Context, s *AuthSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session or ErrSessionRequired when it is absent
// or expired.
func FromContext(ctx context.Context) (*AuthSession, error) {
	s, ok := ctx.Value(sessionKey{}).(*AuthSession)
	if !ok || s == nil || s.Expired(time.Now()) {
		return nil, ErrSessionRequired
	}
	return s, nil
}
