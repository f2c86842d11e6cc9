// Package notification delivers operator alerts to external push services.
package notification

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification.
type Type string

const (
	TypeNegativeStreak Type = "negative_streak"
	TypeDegraded       Type = "degraded"
	TypeRecovered      Type = "recovered"
	TypeSessionEnded   Type = "session_ended"
)

// Priority is the urgency of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is one operator-facing message.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewNotification builds a notification stamped with the current time.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Metadata:  make(map[string]any),
		Timestamp: time.Now(),
	}
}

// WithComponent sets the originating component.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithMetadata attaches a key/value pair.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// Clone returns a copy safe to hand to another goroutine.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Metadata = maps.Clone(n.Metadata)
	return &c
}

// CooldownKey groups notifications that share a debounce slot.
func (n *Notification) CooldownKey() string {
	return string(n.Type)
}
