// Package service provides the application layer between HTTP handlers and
// the agent: conversation ownership, turn serialisation and persistence.
package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/pkg/logger"
	"github.com/capitalize-ai/task-agent/pkg/metrics"
)

const defaultConversationTitle = "Tasks"

// ConversationService handles conversation operations. Conversations are
// owned by exactly one user and are invisible to everyone else.
type ConversationService struct {
	logger *logger.Logger
	now    func() time.Time

	// Conversation metadata lives in memory; the messages themselves are in
	// the message log.
	conversations map[string]*model.Conversation
	mu            sync.RWMutex
}

// NewConversationService creates a new conversation service.
func NewConversationService(log *logger.Logger) *ConversationService {
	return &ConversationService{
		logger:        log,
		now:           time.Now,
		conversations: make(map[string]*model.Conversation),
	}
}

// Create creates a new conversation for userID.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := s.now()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultConversationTitle
	}

	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	metrics.RecordConversation()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)

	c := *conv
	return &c, nil
}

// Get retrieves a conversation owned by userID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.UserID != userID {
		return nil, model.ErrConversationNotFound
	}

	c := *conv
	return &c, nil
}

// List returns the user's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	s.mu.RLock()
	convs := make([]model.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			convs = append(convs, *conv)
		}
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID > convs[j].ID
	})

	total := len(convs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListConversationsResponse{
		Conversations: convs[start:end],
		Total:         total,
		HasMore:       end < total,
	}, nil
}

// UpdateLastMessage records msg as the latest message of the conversation.
func (s *ConversationService) UpdateLastMessage(ctx context.Context, userID, conversationID string, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.UserID != userID {
		return model.ErrConversationNotFound
	}

	last := *msg
	conv.LastMessage = &last
	conv.MessageCount++
	conv.UpdatedAt = s.now()

	return nil
}
