// Package outbox drains persisted event rows to the work-queue broker.
//
// Event rows are appended by the service layer in the same transaction as
// the data mutation they describe, so a pending row exists if and only if
// its mutation committed. The Dispatcher polls for pending rows and
// publishes them, which gives at-least-once delivery: a crash between
// publish and MarkDispatched re-delivers the event on the next cycle, and
// consumers are expected to tolerate duplicates.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/events"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// Default dispatcher settings
const (
	DefaultDispatchInterval = 5 * time.Second
	DefaultBatchSize        = 100
)

// Config holds the Dispatcher settings.
type Config struct {
	// DispatchInterval is how often pending events are polled.
	DispatchInterval time.Duration

	// BatchSize is the maximum number of events drained per cycle.
	BatchSize int
}

// Dispatcher periodically drains pending outbox rows to the broker.
type Dispatcher struct {
	eventStore store.TaskEventStore
	publisher  events.Publisher
	config     Config
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Zero config values fall back to the
// package defaults.
func NewDispatcher(
	eventStore store.TaskEventStore,
	publisher events.Publisher,
	config Config,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if eventStore == nil {
		return nil, fmt.Errorf("eventStore cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}

	if config.DispatchInterval <= 0 {
		config.DispatchInterval = DefaultDispatchInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		eventStore: eventStore,
		publisher:  publisher,
		config:     config,
		logger:     logger.With("component", "outbox_dispatcher"),
		ctx:        ctx,
		cancelFunc: cancel,
	}, nil
}

// Start begins the background drain loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()

	d.logger.Info("outbox dispatcher started",
		"interval", d.config.DispatchInterval,
		"batch_size", d.config.BatchSize)
}

// Stop cancels the drain loop and waits for the in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.cancelFunc()
	d.wg.Wait()
	d.logger.Info("outbox dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.DispatchPending(d.ctx); err != nil {
				d.logger.Error("outbox drain cycle failed", "error", err)
			}
		}
	}
}

// DispatchPending drains one batch of pending events. It is exported so
// callers can force a drain (e.g. during shutdown) without waiting for
// the next tick. Per-event publish failures are recorded on the event row
// and do not abort the batch.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	start := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := d.eventStore.ListPending(ctx, d.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	d.logger.Debug("draining outbox batch", "count", len(pending))

	for _, event := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.dispatchOne(ctx, event)
	}
	return nil
}

// dispatchOne publishes a single event row under the envelope contract:
// the event type doubles as the broker routing key.
func (d *Dispatcher) dispatchOne(ctx context.Context, event *store.TaskEvent) {
	envelope := events.Envelope{
		ID:        event.ID,
		Type:      event.Type,
		Payload:   json.RawMessage(event.Payload),
		CreatedAt: event.CreatedAt,
	}

	if err := d.publisher.Publish(ctx, event.Type, envelope); err != nil {
		d.logger.Warn("failed to publish event",
			"event_id", event.ID,
			"event_type", event.Type,
			"attempts", event.Attempts,
			"error", err)
		eventsFailed.WithLabelValues(event.Type).Inc()

		if markErr := d.eventStore.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			d.logger.Error("failed to record publish failure",
				"event_id", event.ID,
				"error", markErr)
		}
		return
	}

	if err := d.eventStore.MarkDispatched(ctx, event.ID); err != nil {
		// The event was published but not marked; the next cycle will
		// re-deliver it, which at-least-once permits.
		d.logger.Error("failed to mark event dispatched",
			"event_id", event.ID,
			"error", err)
		return
	}

	eventsDispatched.Inc()
	d.logger.Debug("event dispatched",
		"event_id", event.ID,
		"event_type", event.Type)
}
