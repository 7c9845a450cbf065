package bus

import "time"

// Event types published by the session every tick.
const (
	TypePeerConnected    = "peer.connected"
	TypePeerDisconnected = "peer.disconnected"
	TypeEntityReceived   = "entity.received"
	TypeEventReceived    = "event.received"
	TypeTickFailed       = "tick.failed"
)

// Wildcard subscribes to every event type.
const Wildcard = "*"

// EventBus is a thread-safe, in-process pub/sub bus for mesh notifications.
//
// Key characteristics:
// - Type-based fan-out: handlers subscribe by Event.Type() or Wildcard.
// - Synchronous delivery: Publish calls handlers in the caller goroutine.
// - Error aggregation: handler errors are joined and returned from Publish/PublishBatch.
// - Optional observability: metrics are produced only when observers are registered.
type EventBus interface {
	// Publish delivers the event to every active subscriber of event.Type()
	// and to wildcard subscribers.
	Publish(event Event) error
	// PublishBatch publishes events in order and joins every handler error.
	PublishBatch(events ...Event) error
	// PublishWithFilters drops the event silently when a filter rejects it.
	PublishWithFilters(event Event, filters ...EventFilter) error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. It is safe to call with nil.
	Unsubscribe(sub Subscription) error

	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns the counters accumulated while observers were
	// registered.
	GetMetrics() EventBusMetrics
}

// Event is an immutable notification. Implementations should treat Event
// values as read-only.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
	// EventFilter decides whether an event should be delivered.
	EventFilter func(event Event) bool
)

// Subscription is a registered handler.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries. Observers should return
// quickly.
type EventBusObserver interface {
	OnPublish(eventType string, event Event)
	OnDelivered(eventType string, handlers int, err error, durationMicros int64)
}

type EventBusMetrics struct {
	Published         uint64 `json:"published"`
	DeliveredHandlers uint64 `json:"delivered_handlers"`
	Errors            uint64 `json:"errors"`
	DroppedByFilters  uint64 `json:"dropped_by_filters"`
	SubscribersActive uint64 `json:"subscribers_active"`
}
