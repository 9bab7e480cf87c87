package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one dispatched unit of work: a named actor plus keyword
// arguments. Delivery is at-least-once; handlers must tolerate
// arbitrary redelivery.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	Actor     string          `json:"actor"`
	Kwargs    json.RawMessage `json:"kwargs"`
	Timestamp time.Time       `json:"timestamp"`

	// ETA defers delivery until the given time. Zero means deliver
	// immediately.
	ETA time.Time `json:"eta,omitempty"`
}

// NewMessage builds a message for an actor with the given keyword
// arguments.
func NewMessage(actor string, kwargs any) (*Message, error) {
	raw, err := json.Marshal(kwargs)
	if err != nil {
		return nil, fmt.Errorf("marshal kwargs: %w", err)
	}
	return &Message{
		ID:        uuid.New(),
		Actor:     actor,
		Kwargs:    raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// WithDelay schedules the message for delivery after d.
func (m *Message) WithDelay(d time.Duration) *Message {
	m.ETA = m.Timestamp.Add(d)
	return m
}

// Delay returns how long delivery of the message was deferred.
func (m *Message) Delay() time.Duration {
	if m.ETA.IsZero() {
		return 0
	}
	return m.ETA.Sub(m.Timestamp)
}

// DecodeKwargs unmarshals the message kwargs into v.
func (m *Message) DecodeKwargs(v any) error {
	if err := json.Unmarshal(m.Kwargs, v); err != nil {
		return fmt.Errorf("decode kwargs for actor %s: %w", m.Actor, err)
	}
	return nil
}

// Handler processes one delivered message
type Handler func(ctx context.Context, msg *Message) error

// Broker dispatches messages to named actors. The record of a
// dispatched message (actor, kwargs, delay) stays independently
// inspectable via Pending.
type Broker interface {
	Enqueue(ctx context.Context, msg *Message) error
	Subscribe(ctx context.Context, actor string, handler Handler) error
	Pending(ctx context.Context, actor string) ([]*Message, error)
	Close() error
}
