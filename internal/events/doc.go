// Package events provides the event types and publisher interfaces for the
// task status queue.
//
// This package defines the envelope and payload emitted when a task's status
// changes, together with the Publisher interface that abstracts the work-queue
// broker. Services record events without knowing how they reach the broker,
// and the outbox dispatcher delivers them after the originating transaction
// has committed.
//
// The primary components are:
// - StatusUpdateEvent: The payload describing a task's new status
// - Envelope: A typed event with a unique ID and JSON payload
// - Publisher: Interface for components that can deliver events to the broker
package events
