package store

import (
	"context"
	"sync"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// MessageLog is an in-memory append-only conversation log.
type MessageLog struct {
	mu       sync.RWMutex
	seq      uint64
	messages map[string][]model.Message
	events   []model.ConversationEvent
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{messages: make(map[string][]model.Message)}
}

func logKey(userID, conversationID string) string {
	return userID + "/" + conversationID
}

// PublishMessage appends a message and returns its sequence number.
// Republishing a message ID returns the original sequence.
func (l *MessageLog) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := logKey(msg.UserID, msg.ConversationID)
	for _, m := range l.messages[key] {
		if msg.ID != "" && m.ID == msg.ID {
			return m.Sequence, nil
		}
	}

	l.seq++
	stored := *msg
	stored.Sequence = l.seq
	l.messages[key] = append(l.messages[key], stored)
	return l.seq, nil
}

// PublishEvent records an event.
func (l *MessageLog) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	stored := *event
	stored.Sequence = l.seq
	l.events = append(l.events, stored)
	return l.seq, nil
}

// Events returns every recorded event.
func (l *MessageLog) Events() []model.ConversationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.ConversationEvent(nil), l.events...)
}

// GetMessages returns up to limit messages with a sequence greater than afterSequence.
func (l *MessageLog) GetMessages(ctx context.Context, userID, conversationID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.Message
	var last uint64
	for _, m := range l.messages[logKey(userID, conversationID)] {
		if m.Sequence <= afterSequence {
			continue
		}
		if len(out) == limit {
			return out, last, true, nil
		}
		out = append(out, m)
		last = m.Sequence
	}
	return out, last, false, nil
}
