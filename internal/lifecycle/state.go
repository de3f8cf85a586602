package lifecycle

import "time"

// State is the lifecycle state of one element.
type State string

const (
	StateCreated    State = "created"
	StateRegistered State = "registered"
	StateActive     State = "active"
	StateSuspended  State = "suspended"
	StateUpdating   State = "updating"
	StateError      State = "error"
	StateDestroyed  State = "destroyed"
)

// States lists every state in display order.
var States = []State{StateCreated, StateRegistered, StateActive, StateSuspended, StateUpdating, StateError, StateDestroyed}

// acceptsUpdates reports whether content updates may start from s.
func (s State) acceptsUpdates() bool {
	switch s {
	case "", StateSuspended, StateDestroyed:
		return false
	}
	return true
}

// EventType names a transition.
type EventType string

const (
	EventCreated    EventType = "created"
	EventRegistered EventType = "registered"
	EventActivated  EventType = "activated"
	EventSuspended  EventType = "suspended"
	EventUpdating   EventType = "updating"
	EventUpdated    EventType = "updated"
	EventFailed     EventType = "error"
	EventDestroyed  EventType = "destroyed"
)

// Event describes one transition.
type Event struct {
	ElementID     string    `json:"elementId"`
	EventType     EventType `json:"eventType"`
	PreviousState State     `json:"previousState,omitempty"`
	NewState      State     `json:"newState"`
	Timestamp     time.Time `json:"timestamp"`
}
