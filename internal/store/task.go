package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

// SortOrder is the direction of a sorted task listing.
type SortOrder string

// Possible sort order values
const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Default pagination values applied by TaskFilter.Normalize.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// DefaultSortColumn is the column used when no sort column is supplied.
const DefaultSortColumn = "id"

// sortableColumns is the allow-list of columns that may appear in an
// ORDER BY clause. Caller-supplied column names are never interpolated
// into a query without passing this check.
var sortableColumns = map[string]struct{}{
	"id":         {},
	"title":      {},
	"status":     {},
	"priority":   {},
	"created_at": {},
	"updated_at": {},
}

// IsSortableColumn reports whether the given column is allowed in an
// ORDER BY clause.
func IsSortableColumn(column string) bool {
	_, ok := sortableColumns[column]
	return ok
}

// TaskFilter describes which tasks a listing should return and how the
// result set is paged and ordered. All predicate fields are optional;
// present fields are combined conjunctively. Free-text search matches
// title or description by case-insensitive substring containment.
// Date bounds are inclusive on both ends and apply to CreatedAt.
type TaskFilter struct {
	Page     int
	Limit    int
	Status   *domain.TaskStatus
	Priority *domain.TaskPriority
	UserID   *uuid.UUID
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time

	// SortColumn must pass IsSortableColumn; anything else falls back
	// to DefaultSortColumn.
	SortColumn string
	SortOrder  SortOrder
}

// Normalize coerces absent or out-of-range pagination and sorting fields
// to their defaults: page 1, limit 10, sort by id descending.
func (f *TaskFilter) Normalize() {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if !IsSortableColumn(f.SortColumn) {
		f.SortColumn = DefaultSortColumn
	}
	if f.SortOrder != SortAsc && f.SortOrder != SortDesc {
		f.SortOrder = SortDesc
	}
}

// Offset returns the row offset implied by the filter's page and limit.
// The filter must be normalized first.
func (f *TaskFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	// Returns ErrInvalidEntity if the owning user does not exist.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID with the owner relation
	// resolved: the returned task carries the owning user in Task.Owner.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns the page of tasks selected by the filter together with
	// the total number of tasks matching the filter's predicates. The page
	// and the count are derived from the same predicate set in a single
	// call, so they cannot drift apart within one invocation.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)

	// Update persists changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// CompleteAll marks every task in ids whose status is not already
	// completed as completed, using a single set-based statement.
	// Already-completed tasks are not rewritten. Returns the IDs of the
	// tasks that were actually updated. Missing IDs are not an error.
	CompleteAll(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	// DeleteAll removes every task in ids using a single set-based
	// statement and returns the number of rows deleted. Missing IDs are
	// not an error; partial success is reported through the count.
	DeleteAll(ctx context.Context, ids []uuid.UUID) (int64, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
