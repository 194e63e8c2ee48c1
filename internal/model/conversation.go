// Package model defines data structures for the task agent.
package model

import (
	"errors"
	"time"
)

// ErrConversationNotFound is returned when a conversation does not exist or belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation represents a chat thread between one user and the task agent.
// Conversations are append-only: messages are added, nothing is rewritten.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count,omitempty"`
	LastMessage  *Message  `json:"last_message,omitempty"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
