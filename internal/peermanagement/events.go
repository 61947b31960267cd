// Package peermanagement terminates the peer connections of a validator
// network and relays traffic between every pair of nodes.
package peermanagement

import (
	"time"
)

// EventType represents the type of interception event.
type EventType int

const (
	// EventLinkEstablished is emitted when both sessions of a link are up.
	EventLinkEstablished EventType = iota

	// EventLinkFailed is emitted when a link could not be established or
	// ended with an error.
	EventLinkFailed

	// EventLinkClosed is emitted when a link ended in an orderly way.
	EventLinkClosed

	// EventMessageForwarded is emitted for every chunk written to the
	// destination session.
	EventMessageForwarded

	// EventMessageDropped is emitted when the controller or a fault policy
	// discarded a chunk.
	EventMessageDropped

	// EventMessageRejected is emitted for chunks the relay cannot forward.
	EventMessageRejected

	// EventControllerUnavailable is emitted when arbitration failed and the
	// fallback action was applied.
	EventControllerUnavailable
)

// String returns the string representation of an EventType.
func (e EventType) String() string {
	switch e {
	case EventLinkEstablished:
		return "LinkEstablished"
	case EventLinkFailed:
		return "LinkFailed"
	case EventLinkClosed:
		return "LinkClosed"
	case EventMessageForwarded:
		return "MessageForwarded"
	case EventMessageDropped:
		return "MessageDropped"
	case EventMessageRejected:
		return "MessageRejected"
	case EventControllerUnavailable:
		return "ControllerUnavailable"
	default:
		return "Unknown"
	}
}

// Drop reasons carried by EventMessageDropped.
const (
	DropByController = "controller"
	DropByFault      = "fault"
	DropByFallback   = "fallback"
)

// Event represents an interception event.
type Event struct {
	Type EventType
	Time time.Time

	// Link is the ID of the link the event relates to.
	Link string

	// From and To are node indices for message events.
	From int
	To   int

	// Size is the number of bytes read from the source (message events).
	Size int

	// Mutated is set when the controller replaced the payload.
	Mutated bool

	// Delay is the fault delay applied before forwarding.
	Delay time.Duration

	// Reason is set for drop events.
	Reason string

	// Error is set for failure events.
	Error error
}

// emit sends an event without blocking. Events are discarded when the
// consumer falls behind.
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case ch <- ev:
	default:
	}
}
