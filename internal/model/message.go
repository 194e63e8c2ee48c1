package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message. Messages are immutable once appended.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`

	// Content
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Pending is set on the assistant message that asked for a yes/no
	// confirmation. The confirmation stays active until the next assistant
	// message is appended without one.
	Pending *PendingConfirmation `json:"pending_confirmation,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// JetStream Metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// PendingConfirmation is a proposed mutating tool call waiting for the user's yes or no.
type PendingConfirmation struct {
	ToolName   ToolName          `json:"tool_name"`
	Parameters map[string]string `json:"parameters"`
	TaskTitle  string            `json:"task_title,omitempty"`
	Prompt     string            `json:"prompt"`
}

// SendMessageRequest is the request to send a new chat message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the response after one agent turn.
type SendMessageResponse struct {
	ResponseText string     `json:"response_text"`
	ToolCalls    []ToolCall `json:"tool_calls"`
	Message      *Message   `json:"message,omitempty"`
	Awaiting     bool       `json:"awaiting_confirmation"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages     []Message `json:"messages"`
	HasMore      bool      `json:"has_more"`
	LastSequence uint64    `json:"last_sequence"`
}
