// Package checkpoint fetches, caches and invalidates the per-step completion
// records of one onboarding journey.
//
// Each step is an independent query. Records are decoded into typed payloads
// once, here, and replaced wholesale on every fetch. A record stays fresh for
// FreshFor and is evicted after EvictAfter without reads.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"onboarding/internal/backend"
	"onboarding/internal/checkpoint/metrics"
	"onboarding/internal/domain"
	"onboarding/internal/session"
	dErrors "onboarding/pkg/domain-errors"
)

// codePasswordAlreadySet is the business error the backend returns when a
// password exists; it rejects re-submission instead of reporting status.
const codePasswordAlreadySet = "password_already_set"

// Fetcher loads the raw record body of one step. Steps without a record
// yield an error for which backend.IsNotReady is true.
type Fetcher interface {
	FetchCheckpoint(ctx context.Context, step domain.StepID) ([]byte, error)
}

// Config tunes caching and retries.
type Config struct {
	FreshFor   time.Duration
	EvictAfter time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
	// FetchTimeout bounds one shared load, retries included. Loads are
	// detached from the caller so a departing caller cannot fail the others
	// waiting on the same step.
	FetchTimeout time.Duration
}

// DefaultConfig returns the standard cache windows and retry budget.
func DefaultConfig() Config {
	return Config{
		FreshFor:     5 * time.Minute,
		EvictAfter:   20 * time.Minute,
		MaxRetries:   2,
		RetryBase:    200 * time.Millisecond,
		FetchTimeout: 30 * time.Second,
	}
}

type entry struct {
	record    domain.Record
	fetchedAt time.Time
	lastUsed  time.Time
}

// Store caches checkpoint records for one journey.
type Store struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[domain.StepID]*entry
	// generation is bumped on invalidation so fetches that started earlier
	// cannot overwrite a newer answer.
	generation map[domain.StepID]uint64
	group      singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithConfig overrides the cache windows and retry budget.
func WithConfig(cfg Config) Option {
	return func(s *Store) {
		s.cfg = cfg
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New constructs a Store.
func New(fetcher Fetcher, opts ...Option) (*Store, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("checkpoint fetcher is required")
	}
	s := &Store{
		fetcher:    fetcher,
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
		now:        time.Now,
		entries:    make(map[domain.StepID]*entry),
		generation: make(map[domain.StepID]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch returns the record for step, from cache when fresh.
func (s *Store) Fetch(ctx context.Context, step domain.StepID) (domain.Record, error) {
	if _, err := session.FromContext(ctx); err != nil {
		return domain.Record{}, err
	}
	if rec, ok := s.cached(step); ok {
		s.metrics.RecordCacheHit()
		return rec, nil
	}
	s.metrics.RecordCacheMiss()

	ch := s.group.DoChan(string(step), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout())
		defer cancel()
		return s.load(lctx, step)
	})
	select {
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Record{}, res.Err
		}
		return res.Val.(domain.Record), nil
	}
}

func (s *Store) fetchTimeout() time.Duration {
	if s.cfg.FetchTimeout > 0 {
		return s.cfg.FetchTimeout
	}
	return DefaultConfig().FetchTimeout
}

// FetchAll queries every step in parallel. Only an authentication failure
// aborts the whole snapshot; other failures leave their step unsettled.
func (s *Store) FetchAll(ctx context.Context) (Snapshot, error) {
	if _, err := session.FromContext(ctx); err != nil {
		return Snapshot{}, err
	}

	snap := newSnapshot()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range domain.AllSteps {
		g.Go(func() error {
			rec, err := s.Fetch(gctx, step)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					return err
				}
				snap.Errors[step] = err
				return nil
			}
			snap.Records[step] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Invalidate forces the next read of step to go to the backend.
func (s *Store) Invalidate(step domain.StepID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, step)
	s.generation[step]++
	s.group.Forget(string(step))
}

// InvalidateAll clears the whole cache.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range domain.AllSteps {
		delete(s.entries, step)
		s.generation[step]++
		s.group.Forget(string(step))
	}
}

// Refetch invalidates step and waits for the fresh record, so anything
// computed afterwards sees the new state.
func (s *Store) Refetch(ctx context.Context, step domain.StepID) (domain.Record, error) {
	s.Invalidate(step)
	return s.Fetch(ctx, step)
}

// StepData returns the typed payload of step, nil when absent.
func (s *Store) StepData(ctx context.Context, step domain.StepID) (domain.Payload, error) {
	rec, err := s.Fetch(ctx, step)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// IsStepCompleted reports whether step is complete.
func (s *Store) IsStepCompleted(ctx context.Context, step domain.StepID) (bool, error) {
	rec, err := s.Fetch(ctx, step)
	if err != nil {
		return false, err
	}
	return rec.Completed, nil
}

// HasMismatchData reports whether a PAN/Aadhaar mismatch was recorded.
func (s *Store) HasMismatchData(ctx context.Context) (bool, error) {
	return s.IsStepCompleted(ctx, domain.StepAadhaarMismatchDetails)
}

// MismatchData returns the recorded mismatch, if any.
func (s *Store) MismatchData(ctx context.Context) (domain.MismatchPayload, bool, error) {
	rec, err := s.Fetch(ctx, domain.StepAadhaarMismatchDetails)
	if err != nil {
		return domain.MismatchPayload{}, false, err
	}
	m, ok := rec.Data.(domain.MismatchPayload)
	return m, ok && rec.Completed, nil
}

// Sweep evicts entries unused for EvictAfter and returns how many went.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.cfg.EvictAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for step, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, step)
			evicted++
		}
	}
	s.metrics.AddEvictions(evicted)
	return evicted
}

// Run sweeps on interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) cached(step domain.StepID) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[step]
	if !ok {
		return domain.Record{}, false
	}
	now := s.now()
	if now.Sub(e.fetchedAt) >= s.cfg.FreshFor {
		return domain.Record{}, false
	}
	e.lastUsed = now
	return e.record, true
}

func (s *Store) load(ctx context.Context, step domain.StepID) (domain.Record, error) {
	s.mu.Lock()
	gen := s.generation[step]
	s.mu.Unlock()

	start := s.now()
	rec, err := s.fetchWithRetry(ctx, step)
	s.metrics.ObserveFetchLatency(step.String(), s.now().Sub(start))
	if err != nil {
		s.metrics.IncrementOutcome(step.String(), "error")
		s.logger.WarnContext(ctx, "checkpoint fetch failed", "step", step, "error", err)
		return domain.Record{}, err
	}
	if rec.Completed {
		s.metrics.IncrementOutcome(step.String(), "completed")
	} else {
		s.metrics.IncrementOutcome(step.String(), "incomplete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation[step] == gen {
		now := s.now()
		s.entries[step] = &entry{record: rec, fetchedAt: now, lastUsed: now}
	}
	return rec, nil
}

func (s *Store) fetchWithRetry(ctx context.Context, step domain.StepID) (domain.Record, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryBase
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.cfg.MaxRetries), ctx)

	return backoff.RetryWithData(func() (domain.Record, error) {
		body, err := s.fetcher.FetchCheckpoint(ctx, step)
		if err != nil {
			return s.classify(step, err)
		}
		data, err := domain.DecodePayload(step, body)
		if err != nil {
			return domain.Record{}, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "checkpoint payload could not be read"))
		}
		return domain.NewRecord(step, data), nil
	}, b)
}

// classify turns a fetch error into a record, a retryable error, or a
// permanent coded error.
func (s *Store) classify(step domain.StepID, err error) (domain.Record, error) {
	if backend.IsNotReady(err) {
		return domain.Incomplete(step), nil
	}
	if step == domain.StepPasswordSetup && backend.BusinessCode(err) == codePasswordAlreadySet {
		return domain.NewRecord(step, domain.PasswordPayload{PasswordSet: true}), nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Record{}, backoff.Permanent(err)
	}
	switch backend.CategoryOf(err) {
	case backend.CategoryAuth:
		return domain.Record{}, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeUnauthorized, "session expired, please restart the onboarding process"))
	case backend.CategoryValidation:
		return domain.Record{}, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeValidation, "checkpoint request rejected"))
	case backend.CategoryBadData:
		return domain.Record{}, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "checkpoint response could not be read"))
	default:
		return domain.Record{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "checkpoint service unavailable")
	}
}
