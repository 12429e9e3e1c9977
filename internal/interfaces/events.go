package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobCreated    EventType = "job_created"
	EventJobClaimed    EventType = "job_claimed"
	EventJobProgress   EventType = "job_progress"
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
	EventJobCancelled  EventType = "job_cancelled"
	EventJobRetried    EventType = "job_retried"
	EventQueueChanged  EventType = "queue_status_changed"
	EventModeChanged   EventType = "mode_changed"
	EventServerStarted EventType = "server_started"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the internal pub/sub event bus
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish sends an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
