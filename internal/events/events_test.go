package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

func TestNewEnvelope(t *testing.T) {
	payload := StatusUpdateEvent{
		TaskID: uuid.New(),
		Status: domain.TaskStatusCompleted,
	}

	env, err := NewEnvelope(TypeStatusUpdate, payload)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, TypeStatusUpdate, env.Type)
	assert.False(t, env.CreatedAt.IsZero())

	var decoded StatusUpdateEvent
	require.NoError(t, env.UnmarshalPayload(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestNewEnvelopeUnserializablePayload(t *testing.T) {
	_, err := NewEnvelope(TypeStatusUpdate, make(chan int))
	assert.Error(t, err)
}

func TestInMemoryPublisher(t *testing.T) {
	pub := NewInMemoryPublisher(nil)

	err := pub.Publish(context.Background(), TypeStatusUpdate, StatusUpdateEvent{
		TaskID: uuid.New(),
		Status: domain.TaskStatusPending,
	})
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, TypeStatusUpdate, events[0].RoutingKey)
	assert.Contains(t, string(events[0].Payload), "pending")
}

func TestInMemoryPublisherFailWith(t *testing.T) {
	pub := NewInMemoryPublisher(nil)

	injected := errors.New("broker unavailable")
	pub.FailWith(injected)

	err := pub.Publish(context.Background(), TypeStatusUpdate, "anything")
	assert.ErrorIs(t, err, injected)
	assert.Empty(t, pub.Events())

	// Clearing the failure restores normal publishing
	pub.FailWith(nil)
	assert.NoError(t, pub.Publish(context.Background(), TypeStatusUpdate, "anything"))
	assert.Len(t, pub.Events(), 1)
}
