package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/internal/store"
	"github.com/capitalize-ai/task-agent/internal/tools"
	"github.com/capitalize-ai/task-agent/pkg/logger"
)

type fakeClient struct {
	content string
	err     error
	last    *CompletionRequest
}

func (f *fakeClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Content: f.content, TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeClient) Name() string { return "fake" }

func newClassifier(fc *fakeClient) *IntentClassifier {
	defs := tools.NewRegistry(store.NewTaskStore()).Definitions()
	return NewIntentClassifier(fc, "", defs, logger.NewNop())
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Intent
	}{
		{
			name:    "plain object",
			content: `{"intent": "add_task", "title": "Dentist appointment"}`,
			want:    model.Intent{Kind: model.IntentAddTask, Title: "Dentist appointment"},
		},
		{
			name:    "fenced with prose",
			content: "Sure:\n```json\n{\"intent\": \"list_tasks\", \"status\": \"Pending\"}\n```",
			want:    model.Intent{Kind: model.IntentListTasks, Status: model.StatusPending},
		},
		{
			name:    "trailing comma repaired",
			content: `{"intent": "complete_task", "reference": "the report",}`,
			want:    model.Intent{Kind: model.IntentCompleteTask, Reference: "the report"},
		},
		{
			name:    "truncated object repaired",
			content: `{"intent": "delete_task", "task_title": "Buy milk"`,
			want:    model.Intent{Kind: model.IntentDeleteTask, TaskTitle: "Buy milk"},
		},
		{
			name:    "unrecognised intent",
			content: `{"intent": "send_email"}`,
			want:    model.Intent{Kind: model.IntentUnknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntent(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseIntent_NoJSON(t *testing.T) {
	_, err := ParseIntent("I think they want to add a task.")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestIntentClassifier_Classify(t *testing.T) {
	fc := &fakeClient{content: `{"intent": "add_task", "title": "Call the plumber"}`}
	c := newClassifier(fc)

	intent, err := c.Classify(context.Background(), "plumber needs a call", "Last mentioned task: Buy milk\n")
	require.NoError(t, err)
	assert.Equal(t, model.IntentAddTask, intent.Kind)
	assert.Equal(t, "Call the plumber", intent.Title)

	require.NotNil(t, fc.last)
	assert.True(t, fc.last.JSON)
	assert.Contains(t, fc.last.System, "delete_task")
	require.Len(t, fc.last.Messages, 1)
	assert.Contains(t, fc.last.Messages[0].Content, "Buy milk")
	assert.Contains(t, fc.last.Messages[0].Content, "plumber needs a call")
}

func TestIntentClassifier_ClientError(t *testing.T) {
	c := newClassifier(&fakeClient{err: errors.New("rate limited")})

	_, err := c.Classify(context.Background(), "plumber needs a call", "")
	assert.ErrorContains(t, err, "rate limited")
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("bard", "key")
	assert.Error(t, err)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(ProviderAnthropic, "")
	assert.Error(t, err)
	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)
}
