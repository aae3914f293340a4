package service

import (
	"errors"
	"fmt"

	"github.com/taskdeck/taskdeck-api/internal/store"
)

// Sentinel errors returned by TaskService for expected failure conditions.
// Callers should check for these with errors.Is().
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrOwnerNotFound indicates that the user a task would belong to does
	// not exist.
	ErrOwnerNotFound = errors.New("task owner not found")

	// ErrInvalidBatchAction indicates an unsupported batch action was
	// requested.
	ErrInvalidBatchAction = errors.New("invalid batch action")

	// ErrEmptyBatch indicates a batch operation was requested with no task
	// IDs.
	ErrEmptyBatch = errors.New("batch task list cannot be empty")
)

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "batch_process")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Known sentinel errors are returned directly without wrapping so that
// callers can match them with errors.Is.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrOwnerNotFound) ||
		errors.Is(err, ErrInvalidBatchAction) ||
		errors.Is(err, ErrEmptyBatch) {
		return err
	}

	// Map store-level sentinels to their service-level equivalents.
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	if errors.Is(err, store.ErrUserNotFound) {
		return ErrOwnerNotFound
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
