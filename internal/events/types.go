// Package events fans capture pipeline events out to subscribers such as the
// SSE stream and the MQTT publisher.
package events

import "time"

// Type names an event kind. The value is used as the SSE event name and the
// MQTT topic suffix.
type Type string

const (
	TypeResult      Type = "result"
	TypeSnapshot    Type = "performance"
	TypeAlert       Type = "alert"
	TypeSession     Type = "session"
	TypeDegraded    Type = "degraded"
	TypeRecovered   Type = "recovered"
	TypeCaptureStop Type = "capture_stopped"
)

// Event is one published item. Payload must not be mutated after publish.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
	Payload   any       `json:"payload"`
}

// New stamps an event with the current time.
func New(t Type, payload any) Event {
	return Event{Type: t, Timestamp: time.Now(), Payload: payload}
}

// EventBusStats counts bus activity.
type EventBusStats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}
