package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/events"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// CreateTaskInput carries the caller-supplied fields for creating a task.
// Status and Priority are optional; the domain layer fills in defaults.
type CreateTaskInput struct {
	UserID      uuid.UUID           `validate:"required"`
	Title       string              `validate:"required,max=255"`
	Description string              `validate:"max=4000"`
	Status      domain.TaskStatus   `validate:"-"`
	Priority    domain.TaskPriority `validate:"-"`
}

// BatchAction identifies a bulk operation over a set of tasks.
type BatchAction string

// Supported batch actions
const (
	BatchActionComplete BatchAction = "complete"
	BatchActionDelete   BatchAction = "delete"
)

// BatchInput carries the parameters for a batch operation.
type BatchInput struct {
	TaskIDs []uuid.UUID `validate:"required,min=1"`
	Action  BatchAction `validate:"required"`
}

// BatchResult reports the outcome of a batch operation. Batch operations
// are best-effort over the requested set: IDs that no longer exist, or
// that are already in the target state, are skipped rather than failing
// the whole batch.
type BatchResult struct {
	// Updated is the number of tasks transitioned to completed.
	Updated int `json:"updated"`
	// Deleted is the number of tasks removed.
	Deleted int `json:"deleted"`
}

// TaskService provides task mutation and query operations. All mutations
// that change a task's status also owe a status-update event to the work
// queue; the service records that debt as an outbox row in the same
// transaction as the mutation itself.
type TaskService interface {
	// Create validates the input, persists a new task owned by
	// input.UserID, and records a status-update event for it.
	// Returns ErrOwnerNotFound if the owner does not exist.
	Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error)

	// Get retrieves a task by ID with its owner relation resolved in
	// Task.Owner. A missing task is not an error: Get returns (nil, nil)
	// so callers can treat absence as a value.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns the page of tasks matching the filter together with
	// the total number of matches across all pages.
	List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error)

	// Update applies the patch to the task with the given ID. A
	// status-update event is recorded only when the patch actually
	// changed the status. Returns (nil, nil) if the task does not exist.
	Update(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)

	// Delete removes the task with the given ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// BatchProcess applies the requested action to every task in the
	// input set using a single set-based statement. Completing tasks
	// records one status-update event per task that actually changed.
	BatchProcess(ctx context.Context, input BatchInput) (*BatchResult, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	db         *sql.DB
	taskStore  store.TaskStore
	userStore  store.UserStore
	eventStore store.TaskEventStore
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	db *sql.DB,
	taskStore store.TaskStore,
	userStore store.UserStore,
	eventStore store.TaskEventStore,
	logger *slog.Logger,
) (TaskService, error) {
	if db == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "db cannot be nil",
		}
	}
	if taskStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if userStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "userStore cannot be nil",
		}
	}
	if eventStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "eventStore cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		db:         db,
		taskStore:  taskStore,
		userStore:  userStore,
		eventStore: eventStore,
		validate:   validator.New(),
		logger:     logger.With("component", "task_service"),
	}, nil
}

// Create validates the input, persists the task, and appends a
// status-update outbox row in the same transaction.
func (s *taskServiceImpl) Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	if err := s.validate.Struct(input); err != nil {
		s.logger.Warn("invalid create task input",
			"error", err,
			"user_id", input.UserID)
		return nil, NewTaskServiceError("create_task", "invalid input", err)
	}

	task, err := domain.NewTask(input.UserID, input.Title, input.Description, input.Status, input.Priority)
	if err != nil {
		s.logger.Error("failed to create task object",
			"error", err,
			"user_id", input.UserID)
		return nil, NewTaskServiceError("create_task", "failed to create task object", err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.userStore.WithTx(tx).GetByID(ctx, input.UserID); err != nil {
			s.logger.Warn("task owner lookup failed",
				"error", err,
				"user_id", input.UserID)
			if errors.Is(err, store.ErrUserNotFound) {
				return ErrOwnerNotFound
			}
			return NewTaskServiceError("create_task", "failed to resolve task owner", err)
		}

		if err := s.taskStore.WithTx(tx).Create(ctx, task); err != nil {
			s.logger.Error("failed to create task in transaction",
				"error", err,
				"user_id", input.UserID,
				"task_id", task.ID)
			return NewTaskServiceError("create_task", "failed to save task to database", err)
		}

		if err := s.appendStatusEvent(ctx, tx, task.ID, task.Status); err != nil {
			return NewTaskServiceError("create_task", "failed to record status event", err)
		}
		return nil
	})
	if err != nil {
		// Error is already wrapped in the transaction
		return nil, err
	}

	s.logger.Info("task created successfully",
		"task_id", task.ID,
		"user_id", input.UserID,
		"status", task.Status)

	return task, nil
}

// Get retrieves a task by its ID, mapping absence to (nil, nil).
func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			s.logger.Debug("task not found", "task_id", id)
			return nil, nil
		}
		s.logger.Error("failed to retrieve task",
			"error", err,
			"task_id", id)
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// List returns the matching page plus the total match count.
func (s *taskServiceImpl) List(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.Task, int, error) {
	tasks, total, err := s.taskStore.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list tasks",
			"error", err,
			"page", filter.Page,
			"limit", filter.Limit)
		return nil, 0, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}

	s.logger.Debug("listed tasks",
		"count", len(tasks),
		"total", total,
		"page", filter.Page)

	return tasks, total, nil
}

// Update re-reads the task inside the transaction, applies the patch, and
// persists the result. The outbox row is appended only when the patch
// changed the task's status.
func (s *taskServiceImpl) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.TaskPatch,
) (*domain.Task, error) {
	var updated *domain.Task

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txTasks := s.taskStore.WithTx(tx)

		task, err := txTasks.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				s.logger.Debug("task not found for update", "task_id", id)
				return nil
			}
			s.logger.Error("failed to retrieve task for update",
				"error", err,
				"task_id", id)
			return NewTaskServiceError("update_task", "failed to retrieve task", err)
		}

		statusChanged, err := task.Apply(patch)
		if err != nil {
			s.logger.Warn("invalid task patch",
				"error", err,
				"task_id", id)
			return NewTaskServiceError("update_task", "invalid patch", err)
		}

		if err := txTasks.Update(ctx, task); err != nil {
			s.logger.Error("failed to save updated task",
				"error", err,
				"task_id", id)
			return NewTaskServiceError("update_task", "failed to save task", err)
		}

		if statusChanged {
			if err := s.appendStatusEvent(ctx, tx, task.ID, task.Status); err != nil {
				return NewTaskServiceError("update_task", "failed to record status event", err)
			}
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated != nil {
		s.logger.Info("task updated successfully",
			"task_id", updated.ID,
			"status", updated.Status)
	}

	return updated, nil
}

// Delete removes a task. No event is recorded for single deletes.
func (s *taskServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.taskStore.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			s.logger.Debug("task not found for delete", "task_id", id)
			return ErrTaskNotFound
		}
		s.logger.Error("failed to delete task",
			"error", err,
			"task_id", id)
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	s.logger.Info("task deleted successfully", "task_id", id)
	return nil
}

// BatchProcess applies a bulk action. Completion runs in a transaction so
// the set-based update and its fan-out of outbox rows commit together;
// bulk delete is a single statement and needs no explicit transaction.
func (s *taskServiceImpl) BatchProcess(ctx context.Context, input BatchInput) (*BatchResult, error) {
	if err := s.validate.Struct(input); err != nil {
		s.logger.Warn("invalid batch input",
			"error", err,
			"action", input.Action)
		if len(input.TaskIDs) == 0 {
			return nil, ErrEmptyBatch
		}
		return nil, NewTaskServiceError("batch_process", "invalid input", err)
	}

	switch input.Action {
	case BatchActionComplete:
		return s.batchComplete(ctx, input.TaskIDs)
	case BatchActionDelete:
		return s.batchDelete(ctx, input.TaskIDs)
	default:
		s.logger.Warn("unsupported batch action", "action", input.Action)
		return nil, fmt.Errorf("%w: %q", ErrInvalidBatchAction, input.Action)
	}
}

func (s *taskServiceImpl) batchComplete(ctx context.Context, ids []uuid.UUID) (*BatchResult, error) {
	var completed []uuid.UUID

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		completed, err = s.taskStore.WithTx(tx).CompleteAll(ctx, ids)
		if err != nil {
			s.logger.Error("failed to complete tasks",
				"error", err,
				"requested", len(ids))
			return NewTaskServiceError("batch_process", "failed to complete tasks", err)
		}

		for _, id := range completed {
			if err := s.appendStatusEvent(ctx, tx, id, domain.TaskStatusCompleted); err != nil {
				return NewTaskServiceError("batch_process", "failed to record status event", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch complete finished",
		"requested", len(ids),
		"updated", len(completed))

	return &BatchResult{Updated: len(completed)}, nil
}

func (s *taskServiceImpl) batchDelete(ctx context.Context, ids []uuid.UUID) (*BatchResult, error) {
	deleted, err := s.taskStore.DeleteAll(ctx, ids)
	if err != nil {
		s.logger.Error("failed to delete tasks",
			"error", err,
			"requested", len(ids))
		return nil, NewTaskServiceError("batch_process", "failed to delete tasks", err)
	}

	s.logger.Info("batch delete finished",
		"requested", len(ids),
		"deleted", deleted)

	return &BatchResult{Deleted: int(deleted)}, nil
}

// appendStatusEvent records a status-update outbox row within the given
// transaction.
func (s *taskServiceImpl) appendStatusEvent(
	ctx context.Context,
	tx *sql.Tx,
	taskID uuid.UUID,
	status domain.TaskStatus,
) error {
	event, err := store.NewTaskEvent(events.TypeStatusUpdate, events.StatusUpdateEvent{
		TaskID: taskID,
		Status: status,
	})
	if err != nil {
		s.logger.Error("failed to build status event",
			"error", err,
			"task_id", taskID)
		return err
	}

	if err := s.eventStore.WithTx(tx).Append(ctx, event); err != nil {
		s.logger.Error("failed to append status event",
			"error", err,
			"task_id", taskID,
			"event_id", event.ID)
		return err
	}

	s.logger.Debug("status event recorded",
		"task_id", taskID,
		"event_id", event.ID,
		"status", status)
	return nil
}
