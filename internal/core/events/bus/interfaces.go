package bus

import "time"

// Event types published by the race engine.
const (
	TypeCheckpointPassed = "race.checkpoint_passed"
	TypeLapCompleted     = "race.lap_completed"
	TypeRaceFinished     = "race.finished"
	TypeStateChanged     = "race.state_changed"
)

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Delivery is synchronous: Publish invokes handlers in the caller goroutine,
// in an unspecified order, and returns their joined errors. Handlers must be
// quick; the engine publishes from inside the fixed-update phase of a tick.
// Subscriptions may be cancelled from within a handler without corrupting an
// in-flight delivery.
type EventBus interface {
	// Publish delivers the event to all active subscribers of event.Type.
	Publish(event Event) error
	// Subscribe registers a handler for an event type and returns a handle
	// used to cancel it later.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given subscription. Safe to call with nil.
	Unsubscribe(Subscription) error
	// Metrics returns a snapshot of delivery counters.
	Metrics() Metrics
}

// Event is an immutable message transported by the bus. Consumers must treat
// the payload as read-only.
type Event struct {
	Type      string
	Source    string
	Timestamp time.Time
	Data      any
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, src string, data any) Event {
	return Event{Type: typ, Source: src, Timestamp: time.Now(), Data: data}
}

// EventHandler is invoked once per delivered event. A returned error is
// aggregated into the Publish result.
type EventHandler func(event Event) error

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// Metrics is a minimal set of delivery counters.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
}
