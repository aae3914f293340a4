package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/platform/logger"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// maxDispatchAttempts is the retry ceiling for outbox rows. A row that has
// failed this many deliveries is abandoned (status failed) and left for
// operator inspection rather than retried forever.
const maxDispatchAttempts = 10

// PostgresTaskEventStore implements the store.TaskEventStore interface
// using a PostgreSQL database as the storage backend. It is the durable half
// of the outbox: rows are appended inside the mutating transaction and later
// drained by the dispatcher.
type PostgresTaskEventStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskEventStore creates a new PostgreSQL implementation of the
// TaskEventStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskEventStore(db store.DBTX, logger *slog.Logger) *PostgresTaskEventStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskEventStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_event_store")),
	}
}

// Ensure PostgresTaskEventStore implements store.TaskEventStore interface
var _ store.TaskEventStore = (*PostgresTaskEventStore)(nil)

// WithTx implements store.TaskEventStore.WithTx
func (s *PostgresTaskEventStore) WithTx(tx *sql.Tx) store.TaskEventStore {
	return &PostgresTaskEventStore{
		db:     tx,
		logger: s.logger,
	}
}

// Append implements store.TaskEventStore.Append
func (s *PostgresTaskEventStore) Append(ctx context.Context, event *store.TaskEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO task_events (id, type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.Type,
		[]byte(event.Payload),
		event.Status,
		event.Attempts,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to append outbox event",
			slog.String("error", err.Error()),
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.Type))
		return MapError(err)
	}

	log.Debug("outbox event appended",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type))
	return nil
}

// ListPending implements store.TaskEventStore.ListPending
// It returns up to limit pending events, oldest first, so repeated dispatch
// passes drain the backlog in arrival order.
func (s *PostgresTaskEventStore) ListPending(
	ctx context.Context,
	limit int,
) ([]*store.TaskEvent, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, type, payload, status, attempts, COALESCE(last_error, ''), created_at, updated_at
		FROM task_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, store.EventStatusPending, limit)
	if err != nil {
		log.Error("failed to list pending outbox events", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var events []*store.TaskEvent
	for rows.Next() {
		var event store.TaskEvent
		var payload []byte
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&payload,
			&event.Status,
			&event.Attempts,
			&event.LastError,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			log.Error("failed to scan outbox event row", slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		event.Payload = payload
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating outbox event rows", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return events, nil
}

// MarkDispatched implements store.TaskEventStore.MarkDispatched
func (s *PostgresTaskEventStore) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_events
		SET status = $1, updated_at = now()
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, query, store.EventStatusDispatched, id)
	if err != nil {
		log.Error("failed to mark outbox event dispatched",
			slog.String("error", err.Error()),
			slog.String("event_id", id.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, "task event")
}

// MarkFailed implements store.TaskEventStore.MarkFailed
// The row stays pending for retry until it has failed maxDispatchAttempts
// times, after which it is abandoned.
func (s *PostgresTaskEventStore) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE task_events
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE $4 END,
		    updated_at = now()
		WHERE id = $5
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		cause,
		maxDispatchAttempts,
		store.EventStatusFailed,
		store.EventStatusPending,
		id,
	)
	if err != nil {
		log.Error("failed to mark outbox event failed",
			slog.String("error", err.Error()),
			slog.String("event_id", id.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, "task event")
}
