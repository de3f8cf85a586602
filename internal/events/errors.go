package events

import (
	"errors"
	"strings"
)

var (
	// ErrQueueFull is returned when the queue is at MaxQueueSize. The newest event is dropped.
	ErrQueueFull = errors.New("event queue is full")

	// ErrUnknownPriority is returned for priorities outside the configured lanes.
	ErrUnknownPriority = errors.New("unknown event priority")

	// ErrDestroyed is returned by every mutating call after Destroy.
	ErrDestroyed = errors.New("event manager destroyed")

	// ErrElementNotFound is returned when an event targets an unregistered element.
	ErrElementNotFound = errors.New("element not found")

	// ErrUnknownEventType is returned when dispatch meets an unrecognized event type.
	ErrUnknownEventType = errors.New("unknown event type")
)

// ValidationError carries the messages of a rejected event.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "event validation failed"
	}
	return "event validation failed: " + strings.Join(e.Errors, "; ")
}

// IsDestroyed reports whether err stems from use after Destroy.
func IsDestroyed(err error) bool { return errors.Is(err, ErrDestroyed) }

// IsBackpressure reports whether err indicates a full queue.
func IsBackpressure(err error) bool { return errors.Is(err, ErrQueueFull) }
