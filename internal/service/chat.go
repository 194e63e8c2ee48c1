package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/agent"
	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/pkg/logger"
	"github.com/capitalize-ai/task-agent/pkg/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageLog is the append-only store of conversation messages and events.
type MessageLog interface {
	PublishMessage(ctx context.Context, msg *model.Message) (uint64, error)
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
	GetMessages(ctx context.Context, userID, conversationID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error)
}

// Dispatcher runs one agent turn.
type Dispatcher interface {
	Handle(ctx context.Context, history []model.Message, utterance, userID string) (*agent.Result, error)
}

// ChatService runs agent turns against persisted conversations.
type ChatService struct {
	log           MessageLog
	conversations *ConversationService
	dispatcher    Dispatcher
	window        int
	logger        *logger.Logger

	locks *keyedMutex

	appendBackoff func() backoff.BackOff
}

// NewChatService creates a new chat service. window is how many trailing
// messages are handed to the dispatcher as history.
func NewChatService(log MessageLog, conversations *ConversationService, dispatcher Dispatcher, window int, lg *logger.Logger) *ChatService {
	if window <= 0 {
		window = agent.DefaultHistoryWindow
	}
	return &ChatService{
		log:           log,
		conversations: conversations,
		dispatcher:    dispatcher,
		window:        window,
		logger:        lg,
		locks:         newKeyedMutex(),
		appendBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// Send appends the user's message, runs one agent turn and appends the
// assistant's reply. Turns within one conversation run one at a time.
func (s *ChatService) Send(ctx context.Context, userID, conversationID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	log := s.logger.With(zap.String("conversation_id", conversationID), zap.String("user_id", userID))

	// A turn that has started is finished and recorded even if the client
	// goes away; tool and classifier timeouts still bound it.
	ctx = context.WithoutCancel(ctx)

	history, err := s.recentHistory(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           model.RoleUser,
		Content:        req.Content,
		CreatedAt:      time.Now(),
	}
	if err := s.append(ctx, userMsg); err != nil {
		return nil, err
	}

	res, err := s.dispatcher.Handle(ctx, history, req.Content, userID)
	if err != nil {
		return nil, fmt.Errorf("agent turn failed: %w", err)
	}

	assistantMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           model.RoleAssistant,
		Content:        res.ResponseText,
		ToolCalls:      res.ToolCalls,
		Pending:        res.Pending,
		CreatedAt:      time.Now(),
	}
	// The reply carries the outcome of any tool that already ran, so losing
	// it would leave a stale confirmation prompt as the newest reply.
	err = backoff.Retry(func() error {
		return s.append(ctx, assistantMsg)
	}, backoff.WithContext(s.appendBackoff(), ctx))
	if err != nil {
		log.Error("failed to record assistant reply", zap.Int("tool_calls", len(res.ToolCalls)), zap.Error(err))
		return nil, err
	}

	for i := range res.Events {
		s.publishEvent(ctx, log, userID, conversationID, res.Events[i])
	}

	toolCalls := res.ToolCalls
	if toolCalls == nil {
		toolCalls = []model.ToolCall{}
	}
	return &model.SendMessageResponse{
		ResponseText: res.ResponseText,
		ToolCalls:    toolCalls,
		Message:      assistantMsg,
		Awaiting:     res.Pending != nil,
	}, nil
}

// GetMessages returns a page of the conversation's messages.
func (s *ChatService) GetMessages(ctx context.Context, userID, conversationID string, afterSequence uint64, limit int) (*model.ListMessagesResponse, error) {
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, lastSeq, hasMore, err := s.log.GetMessages(ctx, userID, conversationID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}

	return &model.ListMessagesResponse{
		Messages:     messages,
		HasMore:      hasMore,
		LastSequence: lastSeq,
	}, nil
}

// recentHistory returns the last window messages, oldest first.
func (s *ChatService) recentHistory(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	var (
		tail  []model.Message
		after uint64
	)
	for {
		page, last, more, err := s.log.GetMessages(ctx, userID, conversationID, after, maxPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		tail = append(tail, page...)
		if len(tail) > s.window {
			tail = tail[len(tail)-s.window:]
		}
		if !more || len(page) == 0 {
			return tail, nil
		}
		after = last
	}
}

func (s *ChatService) append(ctx context.Context, msg *model.Message) error {
	seq, err := s.log.PublishMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to store %s message: %w", msg.Role, err)
	}
	msg.Sequence = seq

	if err := s.conversations.UpdateLastMessage(ctx, msg.UserID, msg.ConversationID, msg); err != nil {
		return err
	}
	metrics.RecordMessage(string(msg.Role))
	return nil
}

func (s *ChatService) publishEvent(ctx context.Context, log *logger.Logger, userID, conversationID string, event model.ConversationEvent) {
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.UserID = userID
	event.ConversationID = conversationID
	event.CreatedAt = time.Now()

	if _, err := s.log.PublishEvent(ctx, &event); err != nil {
		log.Warn("failed to publish conversation event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// keyedMutex serialises work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
