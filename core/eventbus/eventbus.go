// Package eventbus provides the process-wide typed publish/subscribe bus.
//
// All handlers run on a single dispatch goroutine. Publishing from that
// goroutine delivers inline; publishing from anywhere else queues the
// (event, handlers) pair for the dispatch goroutine, so every handler sees
// strictly serialized, in-order invocation.
package eventbus

import (
	"context"
	"reflect"

	"squid-go/core/event"
)

// EventBus is the interface for the event bus.
type EventBus interface {
	// Publish delivers an event to the handlers subscribed to its concrete
	// type. Safe to call from any goroutine. Events nobody subscribed to are
	// dropped silently.
	Publish(e event.Event)

	// SubscribeType registers a handler for one concrete event type.
	// Returns a subscription ID that can be used to unsubscribe.
	SubscribeType(t reflect.Type, handler EventHandler) SubscriptionID

	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by its ID.
	// Unknown or already removed IDs are ignored.
	Unsubscribe(id SubscriptionID)

	// OnDispatchGoroutine reports whether the caller is the dispatch goroutine.
	OnDispatchGoroutine() bool

	// Sync blocks until every event published before the call was delivered.
	Sync(ctx context.Context) error

	// Close drains queued events and stops the dispatch goroutine.
	// After Close is called, Publish will be a no-op.
	Close()
}

// EventHandler is a function that handles an event.
type EventHandler func(e event.Event)

// SubscriptionID identifies one (event type, handler) registration.
type SubscriptionID uint64

// Subscribe registers a typed handler for events of type T. T must be a
// concrete event type such as event.ExposureTimeChanged.
func Subscribe[T event.Event](bus EventBus, fn func(T)) SubscriptionID {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return bus.SubscribeType(t, func(e event.Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}
