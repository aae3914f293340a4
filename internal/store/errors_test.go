package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(ErrUserNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", ErrTaskNotFound)))

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(ErrDuplicate))
	assert.False(t, IsNotFoundError(errors.New("something else")))
}

func TestIsDuplicateError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDuplicateError(ErrDuplicate))
	assert.True(t, IsDuplicateError(ErrEmailExists))
	assert.True(t, IsDuplicateError(fmt.Errorf("create: %w", ErrEmailExists)))

	assert.False(t, IsDuplicateError(nil))
	assert.False(t, IsDuplicateError(ErrNotFound))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewStoreError("task", "create", "insert failed", cause)

	assert.Equal(t, "create operation on task failed: insert failed: connection reset", err.Error())
	assert.True(t, errors.Is(err, cause))

	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "task", storeErr.Entity)

	// Without a wrapped cause the message omits the error suffix
	bare := NewStoreError("user", "get", "no rows", nil)
	assert.Equal(t, "get operation on user failed: no rows", bare.Error())
}

func TestNewTaskEvent(t *testing.T) {
	t.Parallel()

	payload := map[string]string{"task_id": "abc", "status": "completed"}
	event, err := NewTaskEvent("task.status-update", payload)

	assert.NoError(t, err)
	assert.NotNil(t, event)
	assert.Equal(t, "task.status-update", event.Type)
	assert.Equal(t, EventStatusPending, event.Status)
	assert.Zero(t, event.Attempts)
	assert.JSONEq(t, `{"task_id":"abc","status":"completed"}`, string(event.Payload))
	assert.False(t, event.CreatedAt.IsZero())

	// Unserializable payloads are rejected
	_, err = NewTaskEvent("task.status-update", make(chan int))
	assert.Error(t, err)
}
