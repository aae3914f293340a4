package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

// Event type constants double as broker routing keys.
const (
	// TypeStatusUpdate is emitted whenever a task's status changes,
	// including on creation.
	TypeStatusUpdate = "task.status-update"
)

// StatusUpdateEvent is the payload carried by a TypeStatusUpdate event.
type StatusUpdateEvent struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

// Envelope wraps an event payload with identity and timing metadata.
// The payload is kept as raw JSON so the envelope has no dependency on
// any particular payload type.
type Envelope struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the event type and is used as the broker routing key
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEnvelope creates a new Envelope with the specified type and payload.
func NewEnvelope(eventType string, payload interface{}) (*Envelope, error) {
	// Serialize the payload to JSON
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Publisher defines an interface for components that deliver events to the
// work-queue broker. Delivery is at-least-once: a nil return means the
// broker accepted the event, not that a consumer has processed it.
type Publisher interface {
	// Publish delivers the payload to the broker under the given routing key.
	// Returns an error if the broker did not accept the event.
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}
