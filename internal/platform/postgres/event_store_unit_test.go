//go:build test_without_external_deps

package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

func TestPostgresTaskEventStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	eventStore := NewPostgresTaskEventStore(db, nil)

	event, err := store.NewTaskEvent("task.status-update", map[string]string{"task_id": "x"})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_events")).
		WithArgs(
			event.ID, event.Type, []byte(event.Payload), event.Status,
			event.Attempts, event.CreatedAt, event.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, eventStore.Append(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskEventStore_ListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	eventStore := NewPostgresTaskEventStore(db, nil)

	first, err := store.NewTaskEvent("task.status-update", map[string]string{"task_id": "a"})
	require.NoError(t, err)
	second, err := store.NewTaskEvent("task.status-update", map[string]string{"task_id": "b"})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "type", "payload", "status", "attempts", "last_error", "created_at", "updated_at",
	})
	for _, event := range []*store.TaskEvent{first, second} {
		rows.AddRow(
			event.ID.String(), event.Type, []byte(event.Payload),
			string(event.Status), event.Attempts, "", event.CreatedAt, event.UpdatedAt,
		)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM task_events")).
		WithArgs(store.EventStatusPending, 50).
		WillReturnRows(rows)

	events, err := eventStore.ListPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, store.EventStatusPending, events[0].Status)
	assert.JSONEq(t, string(first.Payload), string(events[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskEventStore_MarkDispatched(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	eventStore := NewPostgresTaskEventStore(db, nil)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_events")).
		WithArgs(store.EventStatusDispatched, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, eventStore.MarkDispatched(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskEventStore_MarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	eventStore := NewPostgresTaskEventStore(db, nil)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_events")).
		WithArgs(
			"broker unavailable", maxDispatchAttempts,
			store.EventStatusFailed, store.EventStatusPending, id,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = eventStore.MarkFailed(context.Background(), id, "broker unavailable")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskEventStore_MarkDispatchedMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	eventStore := NewPostgresTaskEventStore(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = eventStore.MarkDispatched(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
