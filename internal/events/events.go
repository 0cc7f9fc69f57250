// Package events publishes journey milestones (completed steps, verification
// outcomes, resets) for downstream consumers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event.
type Type string

const (
	TypeStepCompleted       Type = "step_completed"
	TypeVerificationOutcome Type = "verification_outcome"
	TypeJourneyReset        Type = "journey_reset"
)

// Event is one journey milestone.
type Event struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	ClientID string    `json:"client_id"`
	Step     string    `json:"step,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	State    string    `json:"state,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// stamp fills the id and timestamp when absent.
func stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return e
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	p.logger.InfoContext(ctx, "journey event",
		"event_id", event.ID,
		"type", event.Type,
		"client_id", event.ClientID,
		"step", event.Step,
		"kind", event.Kind,
		"state", event.State,
		"reason", event.Reason,
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}

// MemoryPublisher keeps events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher constructs an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the event.
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, stamp(event))
	return nil
}

// Events returns a copy of everything published.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close is a no-op.
func (p *MemoryPublisher) Close() error {
	return nil
}
