// Package profile keeps the small set of per-user values the onboarding
// flow persists between visits: verified contact details, the client id and
// the names used for identity reconciliation.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"onboarding/internal/expiring"
)

// DefaultTTL is how long persisted fields stay readable.
const DefaultTTL = 24 * time.Hour

// Field names one persisted value. Fields double as the key purpose.
type Field string

const (
	FieldEmail     Field = "verified_email"
	FieldPhone     Field = "verified_phone"
	FieldClientID  Field = "client_id"
	FieldFullName  Field = "full_name"
	FieldNameCache Field = "full_name_derived"
)

var allFields = []Field{FieldEmail, FieldPhone, FieldClientID, FieldFullName, FieldNameCache}

// Entry is a persisted field value. Values recovered from a URL (deep link
// or redirect parameters) are kept but not trusted until re-derived.
type Entry struct {
	Value            string `json:"value"`
	RecoveredFromURL bool   `json:"recovered_from_url,omitempty"`
}

// Trusted reports whether the entry can be used without re-derivation.
func (e Entry) Trusted() bool {
	return !e.RecoveredFromURL && strings.TrimSpace(e.Value) != ""
}

// Profile reads and writes the fields of one subject.
type Profile struct {
	store   *expiring.Store
	subject string
	ttl     time.Duration
}

// New binds a profile to a subject. A zero ttl selects DefaultTTL.
func New(store *expiring.Store, subject string, ttl time.Duration) (*Profile, error) {
	if store == nil {
		return nil, fmt.Errorf("expiring store is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("profile subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Profile{store: store, subject: subject, ttl: ttl}, nil
}

func (p *Profile) key(f Field) expiring.Key {
	return expiring.Key{Purpose: string(f), Subject: p.subject}
}

// Put stores a trusted value.
func (p *Profile) Put(ctx context.Context, f Field, value string) error {
	return p.store.Set(ctx, p.key(f), Entry{Value: value}, p.ttl)
}

// PutRecovered stores a value taken from a URL. It is readable through
// Lookup but never counts as verified.
func (p *Profile) PutRecovered(ctx context.Context, f Field, value string) error {
	return p.store.Set(ctx, p.key(f), Entry{Value: value, RecoveredFromURL: true}, p.ttl)
}

// Lookup returns the raw entry for a field.
func (p *Profile) Lookup(ctx context.Context, f Field) (Entry, bool, error) {
	var e Entry
	found, err := p.store.Get(ctx, p.key(f), &e)
	if err != nil || !found {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Trusted returns the field value only when present and trusted.
func (p *Profile) Trusted(ctx context.Context, f Field) (string, bool, error) {
	e, found, err := p.Lookup(ctx, f)
	if err != nil || !found || !e.Trusted() {
		return "", false, err
	}
	return e.Value, true, nil
}

// EmailVerified reports whether a trusted verified email is stored.
func (p *Profile) EmailVerified(ctx context.Context) (bool, error) {
	_, ok, err := p.Trusted(ctx, FieldEmail)
	return ok, err
}

// MobileVerified reports whether a trusted verified phone is stored.
func (p *Profile) MobileVerified(ctx context.Context) (bool, error) {
	_, ok, err := p.Trusted(ctx, FieldPhone)
	return ok, err
}

// DeriveFunc recomputes a name from an authoritative source.
type DeriveFunc func(ctx context.Context) (string, error)

// GovernmentName returns the cached government-ID name, re-deriving it when
// the cache is missing or untrusted. A derived name refreshes the cache.
func (p *Profile) GovernmentName(ctx context.Context, derive DeriveFunc) (string, error) {
	if name, ok, err := p.Trusted(ctx, FieldNameCache); err != nil {
		return "", err
	} else if ok {
		return name, nil
	}
	if derive == nil {
		return "", nil
	}
	name, err := derive(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	if err := p.Put(ctx, FieldNameCache, name); err != nil {
		return "", err
	}
	return name, nil
}

// Clear removes every field of the subject.
func (p *Profile) Clear(ctx context.Context) error {
	for _, f := range allFields {
		if err := p.store.Clear(ctx, p.key(f)); err != nil {
			return err
		}
	}
	return nil
}
