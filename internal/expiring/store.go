// Package expiring persists small values with an explicit time-to-live.
//
// Every persisted field of the onboarding flow goes through Store: values are
// wrapped in an envelope carrying their expiry, expired or unreadable entries
// read as absent, and keys are namespaced by purpose so unrelated fields
// never collide.
package expiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"onboarding/pkg/platform/sentinel"
)

// Backend is the raw key/value persistence behind a Store. Get returns
// sentinel.ErrNotFound for absent keys. The ttl passed to Set is a
// housekeeping hint; expiry is enforced by the Store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key addresses one stored value. Purpose separates unrelated fields,
// Subject scopes the value to one user.
type Key struct {
	Purpose string
	Subject string
}

const keyPrefix = "onb"

func (k Key) String() string {
	return keyPrefix + ":" + k.Purpose + ":" + k.Subject
}

type envelope struct {
	Value  json.RawMessage `json:"value"`
	Expiry int64           `json:"expiry"`
}

// Store reads and writes expiring values on top of a Backend.
type Store struct {
	backend Backend
	sealer  *Sealer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts values before they reach the backend.
func WithSealer(sealer *Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

// WithLogger sets the logger used to report discarded entries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New constructs a Store.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("expiring backend is required")
	}
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Set stores value under key until now+ttl.
func (s *Store) Set(ctx context.Context, key Key, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key.Purpose, err)
	}
	body, err := json.Marshal(envelope{Value: raw, Expiry: s.now().Add(ttl).UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if s.sealer != nil {
		body = s.sealer.Seal(body)
	}
	if err := s.backend.Set(ctx, key.String(), body, ttl); err != nil {
		return fmt.Errorf("store %s: %w", key.Purpose, err)
	}
	return nil
}

// Get decodes the value under key into dst and reports whether it was
// present. Expired entries are deleted and reported absent. Entries that
// cannot be opened or decoded are reported absent without error; only
// backend failures surface.
func (s *Store) Get(ctx context.Context, key Key, dst any) (bool, error) {
	body, err := s.backend.Get(ctx, key.String())
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key.Purpose, err)
	}

	if s.sealer != nil {
		body, err = s.sealer.Open(body)
		if err != nil {
			s.discard(ctx, key, err)
			return false, nil
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Expiry == 0 {
		s.discard(ctx, key, fmt.Errorf("envelope: %w", sentinel.ErrCorrupt))
		return false, nil
	}
	if s.now().UnixMilli() > env.Expiry {
		if err := s.backend.Delete(ctx, key.String()); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired value", "purpose", key.Purpose, "error", err)
		}
		return false, nil
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		s.discard(ctx, key, fmt.Errorf("value: %w: %w", sentinel.ErrCorrupt, err))
		return false, nil
	}
	return true, nil
}

// Clear removes the value under key.
func (s *Store) Clear(ctx context.Context, key Key) error {
	if err := s.backend.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("clear %s: %w", key.Purpose, err)
	}
	return nil
}

// discard drops an unreadable entry. cause wraps sentinel.ErrCorrupt.
func (s *Store) discard(ctx context.Context, key Key, cause error) {
	s.logger.DebugContext(ctx, "discarding unreadable value", "purpose", key.Purpose, "error", cause)
	_ = s.backend.Delete(ctx, key.String())
}
