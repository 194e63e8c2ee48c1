package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/task-agent/internal/agent"
	"github.com/capitalize-ai/task-agent/internal/middleware"
	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/internal/service"
	"github.com/capitalize-ai/task-agent/internal/store"
	"github.com/capitalize-ai/task-agent/internal/tools"
	"github.com/capitalize-ai/task-agent/pkg/logger"
)

const testSecret = "test-secret"

type api struct {
	router http.Handler
	tasks  *store.TaskStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	lg := logger.NewNop()
	tasks := store.NewTaskStore()
	registry := tools.NewRegistry(tasks)
	convs := service.NewConversationService(lg)
	chat := service.NewChatService(store.NewMessageLog(), convs,
		agent.NewDispatcher(registry, nil, agent.Config{}, lg), 10, lg)

	conversations := NewConversationHandler(convs, lg)
	messages := NewMessageHandler(chat, lg)
	toolList := NewToolHandler(registry)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))
		r.Get("/tools", toolList.List)
		r.Post("/conversations", conversations.Create)
		r.Get("/conversations", conversations.List)
		r.Get("/conversations/{id}", conversations.Get)
		r.Get("/conversations/{id}/messages", messages.List)
		r.Post("/conversations/{id}/messages", messages.Send)
	})
	return &api{router: r, tasks: tasks}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (a *api) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) createConversation(t *testing.T, userID string) string {
	t.Helper()
	rec := a.do(t, userID, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv.ID
}

func (a *api) send(t *testing.T, userID, convID, content string) model.SendMessageResponse {
	t.Helper()
	rec := a.do(t, userID, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", model.SendMessageRequest{Content: content})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSend_AddThenList(t *testing.T) {
	a := newAPI(t)
	convID := a.createConversation(t, "alice")

	resp := a.send(t, "alice", convID, "add buy milk")
	assert.Contains(t, resp.ResponseText, "Buy milk")
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, model.ToolAddTask, resp.ToolCalls[0].Name)
	assert.Nil(t, resp.ToolCalls[0].Result.Error)

	resp = a.send(t, "alice", convID, "show my tasks")
	assert.Contains(t, resp.ResponseText, "1. [ ] Buy milk")
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, model.ToolListTasks, resp.ToolCalls[0].Name)

	rec := a.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page model.ListMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Messages, 4)
	assert.False(t, page.HasMore)
}

func TestSend_DeleteNeedsConfirmation(t *testing.T) {
	a := newAPI(t)
	convID := a.createConversation(t, "alice")
	a.send(t, "alice", convID, "add buy milk")

	resp := a.send(t, "alice", convID, "delete it")
	assert.True(t, resp.Awaiting)
	assert.Empty(t, resp.ToolCalls)
	assert.NotNil(t, resp.ToolCalls)

	resp = a.send(t, "alice", convID, "yes")
	assert.False(t, resp.Awaiting)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, model.ToolDeleteTask, resp.ToolCalls[0].Name)

	left, err := a.tasks.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSend_Validation(t *testing.T) {
	a := newAPI(t)
	convID := a.createConversation(t, "alice")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"empty content", "/api/v1/conversations/" + convID + "/messages", model.SendMessageRequest{Content: "   "}, http.StatusBadRequest},
		{"oversized content", "/api/v1/conversations/" + convID + "/messages", model.SendMessageRequest{Content: strings.Repeat("a", middleware.MaxMessageLength+1)}, http.StatusBadRequest},
		{"malformed id", "/api/v1/conversations/not-a-uuid/messages", model.SendMessageRequest{Content: "hi"}, http.StatusBadRequest},
		{"unknown conversation", "/api/v1/conversations/6f1c2f0e-8a55-4c57-9d0a-3b8f4f7c1e21/messages", model.SendMessageRequest{Content: "hi"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, "alice", http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestConversations_ScopedToUser(t *testing.T) {
	a := newAPI(t)
	convID := a.createConversation(t, "alice")

	rec := a.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+convID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, "bob", http.MethodPost, "/api/v1/conversations/"+convID+"/messages", model.SendMessageRequest{Content: "list my tasks"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, "bob", http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Conversations)

	rec = a.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresAuth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "", http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTools_List(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "alice", http.MethodGet, "/api/v1/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []tools.Definition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	names := make([]model.ToolName, 0, len(body.Tools))
	for _, d := range body.Tools {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []model.ToolName{
		model.ToolAddTask, model.ToolListTasks, model.ToolCompleteTask, model.ToolDeleteTask, model.ToolUpdateTask,
	}, names)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealth_Ready(t *testing.T) {
	tests := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"healthy", map[string]Pinger{"nats": stubPinger{}}, http.StatusOK},
		{"down", map[string]Pinger{"nats": stubPinger{err: errors.New("disconnected")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.deps)
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
