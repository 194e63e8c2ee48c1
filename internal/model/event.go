package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeError           EventType = "error"
	EventTypeTimeout         EventType = "timeout"
	EventTypeAccessDenied    EventType = "access_denied"
	EventTypeClassifierError EventType = "classifier_error"
)

// ConversationEvent records an out-of-band occurrence in a conversation.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Sequence       uint64         `json:"sequence,omitempty"`
}
