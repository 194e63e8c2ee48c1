package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/task-agent/internal/agent"
	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/internal/store"
	"github.com/capitalize-ai/task-agent/internal/tools"
	"github.com/capitalize-ai/task-agent/pkg/logger"
)

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, utterance, contextSummary string) (*model.Intent, error) {
	return nil, errors.New("classifier down")
}

type fixture struct {
	log   *store.MessageLog
	tasks *store.TaskStore
	convs *ConversationService
	chat  *ChatService
}

func newFixture(t *testing.T, classifier agent.Classifier) *fixture {
	t.Helper()
	lg := logger.NewNop()
	tasks := store.NewTaskStore()
	msgLog := store.NewMessageLog()
	convs := NewConversationService(lg)
	d := agent.NewDispatcher(tools.NewRegistry(tasks), classifier, agent.Config{}, lg)
	return &fixture{
		log:   msgLog,
		tasks: tasks,
		convs: convs,
		chat:  NewChatService(msgLog, convs, d, 10, lg),
	}
}

func (f *fixture) conversation(t *testing.T, userID string) string {
	t.Helper()
	conv, err := f.convs.Create(context.Background(), userID, &model.CreateConversationRequest{})
	require.NoError(t, err)
	return conv.ID
}

func TestConversationService_Ownership(t *testing.T) {
	svc := NewConversationService(logger.NewNop())
	ctx := context.Background()

	conv, err := svc.Create(ctx, "alice", &model.CreateConversationRequest{Title: "  Groceries "})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", conv.Title)

	_, err = svc.Get(ctx, "alice", conv.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, model.ErrConversationNotFound)

	_, err = svc.Create(ctx, "alice", &model.CreateConversationRequest{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", &model.CreateConversationRequest{})
	require.NoError(t, err)

	list, err := svc.List(ctx, "alice", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Conversations, 1)
	assert.True(t, list.HasMore)
}

func TestChatService_AddTurn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	convID := f.conversation(t, "alice")

	resp, err := f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: "Add a task to buy milk"})
	require.NoError(t, err)
	assert.Contains(t, resp.ResponseText, "Buy milk")
	require.Len(t, resp.ToolCalls, 1)
	assert.False(t, resp.Awaiting)
	require.NotNil(t, resp.Message)
	assert.Equal(t, model.RoleAssistant, resp.Message.Role)
	assert.NotZero(t, resp.Message.Sequence)

	page, err := f.chat.GetMessages(ctx, "alice", convID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, model.RoleUser, page.Messages[0].Role)
	assert.Equal(t, "Add a task to buy milk", page.Messages[0].Content)
	assert.Len(t, page.Messages[1].ToolCalls, 1)

	conv, err := f.convs.Get(ctx, "alice", convID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	assert.Equal(t, resp.Message.ID, conv.LastMessage.ID)
}

func TestChatService_ConfirmationSurvivesBetweenRequests(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	convID := f.conversation(t, "alice")

	_, err := f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: "add buy milk"})
	require.NoError(t, err)

	resp, err := f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: "delete it"})
	require.NoError(t, err)
	assert.True(t, resp.Awaiting)
	assert.Empty(t, resp.ToolCalls)
	require.NotNil(t, resp.Message.Pending)

	tasks, err := f.tasks.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	resp, err = f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: "yes"})
	require.NoError(t, err)
	assert.False(t, resp.Awaiting)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, model.ToolDeleteTask, resp.ToolCalls[0].Name)

	tasks, err = f.tasks.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// lossyLog drops the next failures assistant messages.
type lossyLog struct {
	*store.MessageLog
	failures int
}

func (l *lossyLog) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	if msg.Role == model.RoleAssistant && l.failures > 0 {
		l.failures--
		return 0, errors.New("stream unavailable")
	}
	return l.MessageLog.PublishMessage(ctx, msg)
}

func TestChatService_ConfirmedDeleteRunsOnce(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{"reply stored on retry", 1, false},
		{"reply lost", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg := logger.NewNop()
			tasks := store.NewTaskStore()
			log := &lossyLog{MessageLog: store.NewMessageLog()}
			convs := NewConversationService(lg)
			d := agent.NewDispatcher(tools.NewRegistry(tasks), nil, agent.Config{}, lg)
			chat := NewChatService(log, convs, d, 10, lg)
			chat.appendBackoff = func() backoff.BackOff {
				return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
			}

			ctx := context.Background()
			conv, err := convs.Create(ctx, "alice", &model.CreateConversationRequest{})
			require.NoError(t, err)
			send := func(text string) (*model.SendMessageResponse, error) {
				return chat.Send(ctx, "alice", conv.ID, &model.SendMessageRequest{Content: text})
			}

			_, err = send("add buy milk")
			require.NoError(t, err)
			resp, err := send("delete it")
			require.NoError(t, err)
			require.True(t, resp.Awaiting)

			log.failures = tt.failures
			resp, err = send("yes")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Len(t, resp.ToolCalls, 1)
			}
			remaining, err := tasks.List(ctx, "alice")
			require.NoError(t, err)
			require.Empty(t, remaining)

			log.failures = 0
			resp, err = send("yes")
			require.NoError(t, err)
			assert.Empty(t, resp.ToolCalls)
			assert.False(t, resp.Awaiting)
		})
	}
}

func TestChatService_OtherUsersConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	convID := f.conversation(t, "alice")

	_, err := f.chat.Send(ctx, "mallory", convID, &model.SendMessageRequest{Content: "show my tasks"})
	assert.ErrorIs(t, err, model.ErrConversationNotFound)

	_, err = f.chat.GetMessages(ctx, "mallory", convID, 0, 10)
	assert.ErrorIs(t, err, model.ErrConversationNotFound)
}

func TestChatService_TasksAreUserScoped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := f.conversation(t, "alice")
	bob := f.conversation(t, "bob")

	_, err := f.chat.Send(ctx, "alice", alice, &model.SendMessageRequest{Content: "add buy milk"})
	require.NoError(t, err)

	resp, err := f.chat.Send(ctx, "bob", bob, &model.SendMessageRequest{Content: "show my tasks"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Empty(t, resp.ToolCalls[0].Result.Tasks)
}

func TestChatService_PublishesEvents(t *testing.T) {
	f := newFixture(t, failingClassifier{})
	ctx := context.Background()
	convID := f.conversation(t, "alice")

	resp, err := f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: "tell me a joke"})
	require.NoError(t, err)
	assert.Empty(t, resp.ToolCalls)

	events := f.log.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventTypeClassifierError, events[0].Type)
	assert.Equal(t, convID, events[0].ConversationID)
	assert.Equal(t, "alice", events[0].UserID)
	assert.NotEmpty(t, events[0].ID)
}

func TestChatService_TurnsAreSerialised(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	convID := f.conversation(t, "alice")

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.chat.Send(ctx, "alice", convID, &model.SendMessageRequest{Content: fmt.Sprintf("add errand %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	page, err := f.chat.GetMessages(ctx, "alice", convID, 0, 100)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2*turns)
	for i := 0; i < len(page.Messages); i += 2 {
		assert.Equal(t, model.RoleUser, page.Messages[i].Role)
		assert.Equal(t, model.RoleAssistant, page.Messages[i+1].Role)
	}

	tasks, err := f.tasks.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tasks, turns)
}

// pagedLog serves history in fixed-size pages to exercise window trimming.
type pagedLog struct {
	*store.MessageLog
	pageSize int
}

func (p pagedLog) GetMessages(ctx context.Context, userID, conversationID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error) {
	if limit > p.pageSize {
		limit = p.pageSize
	}
	return p.MessageLog.GetMessages(ctx, userID, conversationID, afterSequence, limit)
}

func TestChatService_RecentHistoryWindow(t *testing.T) {
	lg := logger.NewNop()
	log := pagedLog{MessageLog: store.NewMessageLog(), pageSize: 3}
	convs := NewConversationService(lg)
	conv, err := convs.Create(context.Background(), "alice", &model.CreateConversationRequest{})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := log.PublishMessage(context.Background(), &model.Message{
			ID: fmt.Sprintf("m%d", i), ConversationID: conv.ID, UserID: "alice", Role: model.RoleUser,
		})
		require.NoError(t, err)
	}

	chat := NewChatService(log, convs, nil, 4, lg)
	history, err := chat.recentHistory(context.Background(), "alice", conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "m4", history[0].ID)
	assert.Equal(t, "m7", history[3].ID)
}
