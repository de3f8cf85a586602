package types

import "time"

// Priority selects the queue lane of an event.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityNormal    Priority = "normal"
	PriorityLow       Priority = "low"
)

// Priorities lists the lanes in drain order.
var Priorities = []Priority{PriorityImmediate, PriorityHigh, PriorityNormal, PriorityLow}

// Valid reports whether p names one of the four lanes.
func (p Priority) Valid() bool {
	switch p {
	case PriorityImmediate, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// EventType is the closed set of element mutations.
type EventType string

const (
	EventUpdatePayload     EventType = "updatePayload"
	EventUpdateProps       EventType = "updateProps"
	EventUpdateVariants    EventType = "updateVariants"
	EventUpdateStyle       EventType = "updateStyle"
	EventRefreshTransforms EventType = "refreshTransforms"
	EventValidateContent   EventType = "validateContent"
)

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool {
	switch t {
	case EventUpdatePayload, EventUpdateProps, EventUpdateVariants,
		EventUpdateStyle, EventRefreshTransforms, EventValidateContent:
		return true
	}
	return false
}

// EventMetadata describes when, where from and how urgently an event was sent.
type EventMetadata struct {
	Timestamp time.Time `json:"timestamp" cbor:"timestamp"`
	// example: agent
	Source string `json:"source" cbor:"source" example:"agent"`
	// example: normal
	Priority Priority `json:"priority" cbor:"priority" example:"normal"`
}

// ElementEvent is an incremental change pushed against a registered element.
type ElementEvent struct {
	// Assigned on acceptance when empty.
	ID string `json:"id,omitempty" cbor:"id,omitempty"`
	// example: diagram-42
	ElementID   string `json:"elementId" cbor:"elementId" example:"diagram-42"`
	ElementType string `json:"elementType" cbor:"elementType" example:"diagram"`
	// example: updateProps
	EventType         EventType      `json:"eventType" cbor:"eventType" example:"updateProps"`
	Data              map[string]any `json:"data,omitempty" cbor:"data,omitempty"`
	Metadata          EventMetadata  `json:"metadata" cbor:"metadata"`
	PersistChange     bool           `json:"persistChange,omitempty" cbor:"persistChange,omitempty"`
	TriggerTransforms bool           `json:"triggerTransforms,omitempty" cbor:"triggerTransforms,omitempty"`
	ValidateFirst     bool           `json:"validateFirst,omitempty" cbor:"validateFirst,omitempty"`
}

// DedupKey collapses pending updates to the same target.
func (e ElementEvent) DedupKey() string { return e.ElementID + ":" + string(e.EventType) }

// Clone copies the event and its top-level data map.
func (e ElementEvent) Clone() ElementEvent {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	return out
}

// RenderingContent is a resolved representation ready for a UI binding.
type RenderingContent struct {
	Data      []byte          `json:"data"`
	MediaType string          `json:"mediaType"`
	Source    PayloadSource   `json:"source"`
	Metadata  ContentMetadata `json:"metadata"`
}

// ContentMetadata describes how content was obtained.
type ContentMetadata struct {
	Size      int64     `json:"size"`
	FromCache bool      `json:"fromCache"`
	LoadedAt  time.Time `json:"loadedAt"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}
