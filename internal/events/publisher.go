package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// PublishedEvent records a single call to InMemoryPublisher.Publish.
type PublishedEvent struct {
	RoutingKey string
	Payload    json.RawMessage
}

// InMemoryPublisher is a Publisher implementation that records published
// events in memory. It is used in tests and as a stand-in when no broker
// is configured.
type InMemoryPublisher struct {
	mu       sync.RWMutex
	events   []PublishedEvent
	failWith error
	logger   *slog.Logger
}

// NewInMemoryPublisher creates a new InMemoryPublisher.
func NewInMemoryPublisher(logger *slog.Logger) *InMemoryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryPublisher{
		events: make([]PublishedEvent, 0),
		logger: logger.With("component", "in_memory_publisher"),
	}
}

// Publish records the event, or returns the injected failure when one is set.
func (p *InMemoryPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return p.failWith
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.events = append(p.events, PublishedEvent{
		RoutingKey: routingKey,
		Payload:    body,
	})

	p.logger.Debug("event published",
		"routing_key", routingKey,
		"event_count", len(p.events))
	return nil
}

// FailWith makes every subsequent Publish call return err.
// Pass nil to restore normal behavior.
func (p *InMemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Events returns a copy of all recorded events in publish order.
func (p *InMemoryPublisher) Events() []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
