package types

import "time"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: element diagram-42 not found
	Error string `json:"error" example:"element diagram-42 not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ElementsResponse wraps the list returned by GET /elements.
type ElementsResponse struct {
	Elements []ElementStatus `json:"elements"`
}

// ElementStatus pairs an element with its lifecycle state.
type ElementStatus struct {
	Element Element `json:"element"`
	// example: active
	State string `json:"state" example:"active"`
}

// Failure codes carried by SendEventResponse.Code.
const (
	SendNotFound        = "not_found"
	SendInvalid         = "invalid"
	SendQueueFull       = "queue_full"
	SendUnknownPriority = "unknown_priority"
	SendNotAvailable    = "not_available"
	SendFailed          = "failed"
)

// SendEventResponse acknowledges acceptance of an event, not its application.
type SendEventResponse struct {
	Success   bool      `json:"success"`
	ElementID string    `json:"elementId,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	// Set when Success is false.
	// example: queue_full
	Code   string   `json:"code,omitempty" example:"queue_full"`
	Errors []string `json:"errors,omitempty"`
}

// BatchEventsResponse partitions batch submission outcomes.
type BatchEventsResponse struct {
	Successful []SendEventResponse `json:"successful"`
	Failed     []SendEventResponse `json:"failed"`
}

// UpdateContentRequest is the body of PATCH /elements/{id}/content.
type UpdateContentRequest struct {
	Primary           *PayloadSource  `json:"primary,omitempty"`
	Source            *PayloadSource  `json:"source,omitempty"`
	Alternatives      []PayloadSource `json:"alternatives,omitempty"`
	Priority          Priority        `json:"priority,omitempty"`
	PersistChange     bool            `json:"persistChange,omitempty"`
	TriggerTransforms bool            `json:"triggerTransforms,omitempty"`
	ValidateFirst     bool            `json:"validateFirst,omitempty"`
}

// UpdatePropsRequest is the body of PATCH /elements/{id}/props.
type UpdatePropsRequest struct {
	Props    map[string]any `json:"props"`
	Priority Priority       `json:"priority,omitempty"`
}

// CandidateScore is one ranked representation.
type CandidateScore struct {
	Source  PayloadSource `json:"source"`
	Matched bool          `json:"matched"`
	Score   float64       `json:"score"`
}

// NegotiateResponse is returned by POST /elements/{id}/negotiate.
type NegotiateResponse struct {
	Selected   *PayloadSource   `json:"selected"`
	Candidates []CandidateScore `json:"candidates"`
}

// HistoryEntry is one processed event with its outcome.
type HistoryEntry struct {
	Event      ElementEvent `json:"event"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// HistoryResponse is returned by GET /elements/{id}/history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// example: 12
	Elements int `json:"elements" example:"12"`
	// Element count by lifecycle state.
	States map[string]int `json:"states"`
	// Events currently waiting in the queue.
	// example: 3
	QueueLen int `json:"queue_len" example:"3"`
	// example: 1000
	MaxQueueSize int  `json:"max_queue_size" example:"1000"`
	Flushing     bool `json:"flushing"`
	// example: 100
	HistoryLen      int    `json:"history_len" example:"100"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsFailed    uint64 `json:"events_failed"`
	EventsRejected  uint64 `json:"events_rejected"`
	EventsDeduped   uint64 `json:"events_deduped"`
	CacheEntries    int    `json:"cache_entries"`
	CacheHits       uint64 `json:"cache_hits"`
	CacheMisses     uint64 `json:"cache_misses"`
	ResolveFailures uint64 `json:"resolve_failures"`
	// Connection state of the outbound transport.
	// example: disconnected
	Transport      string `json:"transport" example:"disconnected"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ServerTimeUnix int64  `json:"server_time_unix"`
}
