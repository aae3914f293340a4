package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the dispatch state of an outbox event row.
type EventStatus string

// Possible event status values
const (
	EventStatusPending    EventStatus = "pending"
	EventStatusDispatched EventStatus = "dispatched"
	EventStatusFailed     EventStatus = "failed"
)

// TaskEvent is an outbox row recording a queue emission that is owed to
// the broker. Rows are appended in the same transaction as the data
// write they describe, which is what makes emission consistent with the
// mutation: a row exists if and only if the mutation committed.
type TaskEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    EventStatus     `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewTaskEvent creates a pending outbox event of the given type, with the
// payload serialized as JSON.
func NewTaskEvent(eventType string, payload any) (*TaskEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   body,
		Status:    EventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TaskEventStore defines the interface for outbox event persistence.
type TaskEventStore interface {
	// Append saves a new outbox event. Callers that need the event to be
	// consistent with a data mutation must run Append within the same
	// transaction as that mutation, via WithTx.
	Append(ctx context.Context, event *TaskEvent) error

	// ListPending returns up to limit pending events, oldest first.
	ListPending(ctx context.Context, limit int) ([]*TaskEvent, error)

	// MarkDispatched records that the event was delivered to the broker.
	MarkDispatched(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a delivery failure, incrementing the attempt
	// counter and keeping the row pending so the dispatcher retries it.
	// Implementations abandon the row (status failed) once the attempt
	// counter reaches their retry ceiling.
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error

	// WithTx returns a new TaskEventStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskEventStore
}
