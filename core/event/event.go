// Package event defines the state notifications published on the event bus.
// Events are immutable value types; subscribers receive their own copy.
package event

import "time"

// Event is the base interface for everything published on the bus.
// Commands (see package command) are events too.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// Meta carries the creation timestamp shared by all events.
type Meta struct {
	At time.Time
}

// Stamp returns a Meta for the current instant.
func Stamp() Meta {
	return Meta{At: time.Now()}
}

// Timestamp returns when the event was created.
func (m Meta) Timestamp() time.Time {
	return m.At
}

// Timestamped is implemented by every event embedding Meta.
type Timestamped interface {
	Event
	Timestamp() time.Time
}
