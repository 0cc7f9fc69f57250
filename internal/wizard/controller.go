// Package wizard owns the position a user sees in the onboarding wizard.
//
// The controller never decides on its own which step comes next: every move
// consults the resolver over fresh checkpoint records. It never retries a
// failed step either; failures surface as notices and the owning form
// decides what to do.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"onboarding/internal/checkpoint"
	"onboarding/internal/domain"
	"onboarding/internal/events"
	"onboarding/internal/notify"
	"onboarding/internal/resolver"
	dErrors "onboarding/pkg/domain-errors"
)

// Source provides checkpoint records.
type Source interface {
	FetchAll(ctx context.Context) (checkpoint.Snapshot, error)
	Refetch(ctx context.Context, step domain.StepID) (domain.Record, error)
}

// Contacts reports contact verification held outside the checkpoints.
type Contacts interface {
	EmailVerified(ctx context.Context) (bool, error)
	MobileVerified(ctx context.Context) (bool, error)
}

// Requirements are the late-bound flags that change the layout.
type Requirements struct {
	RequiresIncomeProof bool `json:"requires_income_proof"`
	RequiresPanUpload   bool `json:"requires_pan_upload"`
}

// Position describes the displayed step.
type Position struct {
	Index      resolver.Index  `json:"index"`
	Screen     resolver.Screen `json:"screen"`
	Step       domain.StepID   `json:"step,omitempty"`
	Total      int             `json:"total"`
	CanRetreat bool            `json:"can_retreat"`
	Finished   bool            `json:"finished"`
}

// Controller tracks one journey's wizard position.
type Controller struct {
	source     Source
	contacts   Contacts
	notifier   *notify.Notifier
	publisher  events.Publisher
	clientID   string
	minSettled int
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	current resolver.Screen
	req     Requirements
	last    resolver.Input
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithNotifier sets where failures are surfaced.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithPublisher sets where step completions are published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithMinSettled sets how many checkpoint queries must settle before the
// wizard commits to a position.
func WithMinSettled(n int) Option {
	return func(c *Controller) {
		c.minSettled = n
	}
}

// WithClientID tags published events.
func WithClientID(id string) Option {
	return func(c *Controller) {
		c.clientID = id
	}
}

// New constructs a Controller.
func New(source Source, contacts Contacts, opts ...Option) (*Controller, error) {
	if source == nil || contacts == nil {
		return nil, fmt.Errorf("checkpoint source and contacts are required")
	}
	c := &Controller{
		source:     source,
		contacts:   contacts,
		notifier:   notify.New(),
		publisher:  events.NewMemoryPublisher(),
		minSettled: len(domain.AllSteps),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start loads every checkpoint and commits to the resolved position once
// enough queries settled.
func (c *Controller) Start(ctx context.Context) (Position, error) {
	in, err := c.refresh(ctx, true)
	if err != nil {
		return Position{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.targetLocked(in)
	c.started = true
	c.logger.InfoContext(ctx, "wizard started", "screen", c.current)
	return c.positionLocked(), nil
}

// Position returns the displayed step.
func (c *Controller) Position() (Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return Position{}, dErrors.New(dErrors.CodeNotReady, "wizard has not started")
	}
	return c.positionLocked(), nil
}

// Advance moves to the resolved position. It can skip several positions
// when later steps are already satisfied.
func (c *Controller) Advance(ctx context.Context) (Position, error) {
	if err := c.requireStarted(); err != nil {
		return Position{}, err
	}
	in, err := c.refresh(ctx, false)
	if err != nil {
		return Position{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.targetLocked(in)
	if target == c.current {
		return c.positionLocked(), dErrors.New(dErrors.CodeConflict, "complete the current step first")
	}
	c.moveLocked(ctx, target)
	return c.positionLocked(), nil
}

// Retreat moves one position back. It is refused once e-sign is reached
// and never goes before the PAN step.
func (c *Controller) Retreat() (Position, error) {
	if err := c.requireStarted(); err != nil {
		return Position{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canRetreatLocked() {
		c.notifier.Notify(string(c.current), notify.PurposeRetreatForbidden, notify.LevelWarning,
			"This step cannot be revisited.")
		return c.positionLocked(), dErrors.New(dErrors.CodeConflict, "retreat is not allowed from this step")
	}
	l := c.last.Layout()
	i := l.MustIndexOf(c.current) - 1
	if s, _ := l.StepAt(i); s == resolver.ScreenIncomeProof && !c.last.IncomeProofRequired() {
		i--
	}
	prev, _ := l.StepAt(i)
	c.logger.Info("wizard retreat", "from", c.current, "to", prev)
	c.current = prev
	return c.positionLocked(), nil
}

// OnStepSuccess is called by a form after its submission was accepted. The
// step's record is refetched before the position is recomputed.
func (c *Controller) OnStepSuccess(ctx context.Context, step domain.StepID) (Position, error) {
	if err := c.requireStarted(); err != nil {
		return Position{}, err
	}
	if _, err := c.source.Refetch(ctx, step); err != nil {
		c.surface(step.String(), err)
		return Position{}, err
	}
	c.publish(ctx, events.Event{Type: events.TypeStepCompleted, Step: step.String()})

	in, err := c.refresh(ctx, false)
	if err != nil {
		return Position{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if target := c.targetLocked(in); target != c.current {
		c.moveLocked(ctx, target)
	}
	return c.positionLocked(), nil
}

// SetRequirements updates the late-bound flags and recomputes.
func (c *Controller) SetRequirements(ctx context.Context, req Requirements) (Position, error) {
	c.mu.Lock()
	c.req = req
	started := c.started
	c.mu.Unlock()
	if !started {
		return Position{}, nil
	}
	in, err := c.refresh(ctx, false)
	if err != nil {
		return Position{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// A required step before the current position takes over.
	l := in.Layout()
	target := c.targetLocked(in)
	cur, ok := l.IndexOf(c.current)
	if to, _ := l.IndexOf(target); !ok || to < cur {
		c.moveLocked(ctx, target)
	}
	return c.positionLocked(), nil
}

// Report surfaces a failure raised by a form for step.
func (c *Controller) Report(step string, err error) {
	c.surface(step, err)
}

// Reset forgets the position. Called on logout.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.current = ""
	c.req = Requirements{}
	c.last = resolver.Input{}
}

func (c *Controller) requireStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return dErrors.New(dErrors.CodeNotReady, "wizard has not started")
	}
	return nil
}

// refresh builds resolver input from current records. With strict set, too
// few settled queries is an error.
func (c *Controller) refresh(ctx context.Context, strict bool) (resolver.Input, error) {
	snap, err := c.source.FetchAll(ctx)
	if err != nil {
		c.surface("journey", err)
		return resolver.Input{}, err
	}
	if strict && snap.SettledCount() < c.minSettled {
		return resolver.Input{}, dErrors.New(dErrors.CodeNotReady,
			fmt.Sprintf("only %d of %d checkpoints loaded", snap.SettledCount(), c.minSettled))
	}
	email, err := c.contacts.EmailVerified(ctx)
	if err != nil {
		return resolver.Input{}, dErrors.Wrap(err, dErrors.CodeInternal, "read verified email")
	}
	mobile, err := c.contacts.MobileVerified(ctx)
	if err != nil {
		return resolver.Input{}, dErrors.Wrap(err, dErrors.CodeInternal, "read verified mobile")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	in := resolver.Input{
		Records:             snap.Records,
		EmailVerified:       email,
		MobileVerified:      mobile,
		RequiresIncomeProof: c.req.RequiresIncomeProof,
		RequiresPanUpload:   c.req.RequiresPanUpload,
	}
	c.last = in
	return in, nil
}

// targetLocked resolves the screen to show. A segment step blocked on its
// income proof shows the income proof sub-step.
func (c *Controller) targetLocked(in resolver.Input) resolver.Screen {
	s := resolver.ResolveScreen(in)
	if s == resolver.ScreenInvestmentSegment && in.IncomeProofPending() {
		return resolver.ScreenIncomeProof
	}
	return s
}

func (c *Controller) moveLocked(ctx context.Context, to resolver.Screen) {
	c.logger.InfoContext(ctx, "wizard moved", "from", c.current, "to", to)
	c.current = to
}

func (c *Controller) canRetreatLocked() bool {
	l := c.last.Layout()
	cur, ok := l.IndexOf(c.current)
	if !ok {
		return false
	}
	return cur > l.MustIndexOf(resolver.ScreenPAN) && cur < l.MustIndexOf(resolver.ScreenESign)
}

func (c *Controller) positionLocked() Position {
	l := c.last.Layout()
	idx, _ := l.IndexOf(c.current)
	return Position{
		Index:      idx,
		Screen:     c.current,
		Step:       resolver.Routes[c.current],
		Total:      l.Len(),
		CanRetreat: c.canRetreatLocked(),
		Finished:   c.current == resolver.ScreenCongratulations,
	}
}

func (c *Controller) surface(step string, err error) {
	switch {
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		c.notifier.Notify(step, notify.PurposeSessionExpired, notify.LevelError,
			"Your session has expired. Please restart the onboarding process.")
	case dErrors.HasCode(err, dErrors.CodeMismatch):
		c.notifier.Notify(step, notify.PurposeMismatch, notify.LevelWarning, messageOf(err))
	default:
		c.notifier.Notify(step, notify.PurposeStepError, notify.LevelError, messageOf(err))
	}
}

func messageOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "Something went wrong. Please try again."
}

func (c *Controller) publish(ctx context.Context, e events.Event) {
	e.ClientID = c.clientID
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "publish journey event", "type", e.Type, "error", err)
	}
}
