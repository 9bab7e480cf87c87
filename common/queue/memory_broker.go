package queue

import (
	"context"
	"sync"

	"github.com/pubgate/gateway/common/logger"
)

// MemoryBroker is an in-process Broker for tests and development. It
// records every dispatched message; delivery to subscribed handlers is
// immediate and synchronous regardless of ETA.
type MemoryBroker struct {
	mu       sync.Mutex
	messages map[string][]*Message
	handlers map[string]Handler
	log      *logger.Logger
}

// NewMemoryBroker creates an in-memory broker
func NewMemoryBroker(log *logger.Logger) *MemoryBroker {
	return &MemoryBroker{
		messages: make(map[string][]*Message),
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Enqueue records the message and, when a handler is subscribed,
// delivers it synchronously.
func (b *MemoryBroker) Enqueue(ctx context.Context, msg *Message) error {
	b.mu.Lock()
	b.messages[msg.Actor] = append(b.messages[msg.Actor], msg)
	handler := b.handlers[msg.Actor]
	b.mu.Unlock()

	if handler != nil {
		if err := handler(ctx, msg); err != nil {
			b.log.Error("message handler error",
				"actor", msg.Actor,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
	return nil
}

// Subscribe registers a handler for an actor
func (b *MemoryBroker) Subscribe(ctx context.Context, actor string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[actor] = handler
	return nil
}

// Pending returns every message dispatched to an actor so far.
func (b *MemoryBroker) Pending(ctx context.Context, actor string) ([]*Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Message, len(b.messages[actor]))
	copy(out, b.messages[actor])
	return out, nil
}

// Close clears recorded state
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = make(map[string][]*Message)
	b.handlers = make(map[string]Handler)
	return nil
}
