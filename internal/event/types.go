package event

import (
	"time"
)

// Type identifies the kind of notification event.
type Type string

const (
	TypeMessage   Type = "message"
	TypeReminder  Type = "reminder"
	TypeAlert     Type = "alert"
	TypePromotion Type = "promotion"
	TypeSystem    Type = "system"
	TypeUpdate    Type = "update"
	TypeEmail     Type = "email"
)

// AllTypes returns the closed set of event types. Part of the wire contract.
func AllTypes() []Type {
	return []Type{TypeMessage, TypeReminder, TypeAlert, TypePromotion, TypeSystem, TypeUpdate, TypeEmail}
}

// Valid reports whether t is in the event type enumeration.
func (t Type) Valid() bool {
	switch t {
	case TypeMessage, TypeReminder, TypeAlert, TypePromotion, TypeSystem, TypeUpdate, TypeEmail:
		return true
	}
	return false
}

// Channel identifies the delivery channel for a notification.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Valid reports whether c is in the channel enumeration.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Priority is the caller-supplied urgency hint.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is in the priority enumeration.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Event is a validated, canonicalized notification event. Immutable once
// created; the pipeline never mutates it.
type Event struct {
	ID           string                 `json:"event_id"`
	UserID       string                 `json:"user_id"`
	Type         Type                   `json:"event_type"`
	Title        string                 `json:"title,omitempty"`
	Message      string                 `json:"message"`
	Source       string                 `json:"source,omitempty"`
	PriorityHint Priority               `json:"priority_hint,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Channel      Channel                `json:"channel"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DedupeKey    string                 `json:"dedupe_key,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
}

// Text returns the title and message joined for content analysis.
func (e Event) Text() string {
	if e.Title == "" {
		return e.Message
	}
	return e.Title + " " + e.Message
}
