package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/task-agent/internal/model"
	"github.com/capitalize-ai/task-agent/internal/store"
)

const owner = "alice"

// sequentialRegistry issues IDs t1, t2, ... and advances the clock by one
// second per call so creation order is deterministic.
func sequentialRegistry(ts TaskStore) *Registry {
	n := 0
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return NewRegistry(ts,
		WithIDGenerator(func() string { n++; return fmt.Sprintf("t%d", n) }),
		WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
	)
}

func add(t *testing.T, r *Registry, userID, title string) model.TaskSummary {
	t.Helper()
	res := r.Execute(context.Background(), userID, model.ToolAddTask, map[string]string{model.ParamTitle: title})
	require.True(t, res.OK(), "add %q: %v", title, res.Error)
	return *res.Task
}

func TestAddTask_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		reason model.ErrorReason
		field  string
	}{
		{"missing title", map[string]string{}, model.ReasonEmpty, model.ParamTitle},
		{"blank title", map[string]string{model.ParamTitle: "   "}, model.ReasonEmpty, model.ParamTitle},
		{"title too long", map[string]string{model.ParamTitle: strings.Repeat("x", model.MaxTitleLength+1)}, model.ReasonTooLong, model.ParamTitle},
		{"description too long", map[string]string{model.ParamTitle: "ok", model.ParamDescription: strings.Repeat("d", model.MaxDescriptionLength+1)}, model.ReasonTooLong, model.ParamDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := store.NewTaskStore()
			res := NewRegistry(ts).Execute(context.Background(), owner, model.ToolAddTask, tt.params)
			require.NotNil(t, res.Error)
			assert.Equal(t, model.ErrValidation, res.Error.Kind)
			assert.Equal(t, tt.reason, res.Error.Reason)
			assert.Equal(t, tt.field, res.Error.Field)

			tasks, err := ts.List(context.Background(), owner)
			require.NoError(t, err)
			assert.Empty(t, tasks)
		})
	}
}

func TestAddTask_TrimsAndAcceptsMaxLength(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	title := strings.Repeat("é", model.MaxTitleLength)

	res := r.Execute(context.Background(), owner, model.ToolAddTask, map[string]string{
		model.ParamTitle:       "  " + title + "  ",
		model.ParamDescription: " two litres ",
	})
	require.True(t, res.OK())
	assert.Equal(t, title, res.Task.Title)
	assert.Equal(t, "two litres", res.Task.Description)
	assert.Equal(t, model.TaskStatusPending, res.Task.Status)
}

func TestExecute_RequiresUser(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	res := r.Execute(context.Background(), "", model.ToolListTasks, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrAuthorization, res.Error.Kind)
}

func TestExecute_UnknownTool(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	res := r.Execute(context.Background(), owner, "rename_task", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrValidation, res.Error.Kind)
}

func TestListTasks_NewestFirstAndFiltered(t *testing.T) {
	r := sequentialRegistry(store.NewTaskStore())
	add(t, r, owner, "Buy milk")
	walk := add(t, r, owner, "Walk dog")
	add(t, r, owner, "Call mom")
	add(t, r, "bob", "Bob's task")

	res := r.Execute(context.Background(), owner, model.ToolCompleteTask, map[string]string{model.ParamTaskID: walk.ID})
	require.True(t, res.OK())

	titles := func(filter string) []string {
		params := map[string]string{}
		if filter != "" {
			params[model.ParamStatus] = filter
		}
		res := r.Execute(context.Background(), owner, model.ToolListTasks, params)
		require.True(t, res.OK())
		out := make([]string, 0, len(res.Tasks))
		for _, task := range res.Tasks {
			out = append(out, task.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Call mom", "Walk dog", "Buy milk"}, titles(""))
	assert.Equal(t, []string{"Call mom", "Buy milk"}, titles("pending"))
	assert.Equal(t, []string{"Walk dog"}, titles("completed"))

	res = r.Execute(context.Background(), owner, model.ToolListTasks, map[string]string{model.ParamStatus: "overdue"})
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrValidation, res.Error.Kind)
}

func TestCompleteTask_AlreadyCompleted(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	task := add(t, r, owner, "Buy milk")
	params := map[string]string{model.ParamTaskID: task.ID}

	res := r.Execute(context.Background(), owner, model.ToolCompleteTask, params)
	require.True(t, res.OK())
	assert.Equal(t, model.TaskStatusCompleted, res.Task.Status)

	res = r.Execute(context.Background(), owner, model.ToolCompleteTask, params)
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrInvalidState, res.Error.Kind)
	assert.Equal(t, model.ReasonCompleted, res.Error.Reason)
	require.NotNil(t, res.Task)
	assert.Equal(t, "Buy milk", res.Task.Title)
}

func TestMutations_NotFound(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	for _, name := range []model.ToolName{model.ToolCompleteTask, model.ToolDeleteTask} {
		t.Run(string(name), func(t *testing.T) {
			res := r.Execute(context.Background(), owner, name, map[string]string{model.ParamTaskID: "missing"})
			require.NotNil(t, res.Error)
			assert.Equal(t, model.ErrNotFound, res.Error.Kind)
		})
	}

	res := r.Execute(context.Background(), owner, model.ToolDeleteTask, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrValidation, res.Error.Kind)
	assert.Equal(t, model.ReasonMissing, res.Error.Reason)
}

func TestMutations_OtherUsersTaskIsInvisible(t *testing.T) {
	ts := store.NewTaskStore()
	r := NewRegistry(ts)
	task := add(t, r, "bob", "Bob's task")

	res := r.Execute(context.Background(), owner, model.ToolDeleteTask, map[string]string{model.ParamTaskID: task.ID})
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrNotFound, res.Error.Kind)

	_, err := ts.Get(context.Background(), "bob", task.ID)
	assert.NoError(t, err)
}

// leakyStore returns tasks regardless of the requesting user.
type leakyStore struct {
	*store.TaskStore
	task model.Task
}

func (s *leakyStore) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task := s.task
	return &task, nil
}

func TestMutations_RecheckOwnership(t *testing.T) {
	ts := &leakyStore{
		TaskStore: store.NewTaskStore(),
		task:      model.Task{ID: "t1", UserID: "bob", Title: "Bob's task", Status: model.TaskStatusPending},
	}
	r := NewRegistry(ts)

	for _, name := range []model.ToolName{model.ToolCompleteTask, model.ToolDeleteTask, model.ToolUpdateTask} {
		t.Run(string(name), func(t *testing.T) {
			res := r.Execute(context.Background(), owner, name, map[string]string{
				model.ParamTaskID: "t1",
				model.ParamTitle:  "Mine now",
			})
			require.NotNil(t, res.Error)
			assert.Equal(t, model.ErrAuthorization, res.Error.Kind)
		})
	}
}

func TestUpdateTask(t *testing.T) {
	r := NewRegistry(store.NewTaskStore())
	task := add(t, r, owner, "Buy milk")

	res := r.Execute(context.Background(), owner, model.ToolUpdateTask, map[string]string{model.ParamTaskID: task.ID})
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ErrValidation, res.Error.Kind)
	assert.Equal(t, model.ReasonMissing, res.Error.Reason)

	res = r.Execute(context.Background(), owner, model.ToolUpdateTask, map[string]string{
		model.ParamTaskID: task.ID,
		model.ParamTitle:  "",
	})
	require.NotNil(t, res.Error)
	assert.Equal(t, model.ReasonEmpty, res.Error.Reason)

	res = r.Execute(context.Background(), owner, model.ToolUpdateTask, map[string]string{
		model.ParamTaskID:      task.ID,
		model.ParamDescription: "Two litres",
	})
	require.True(t, res.OK())
	assert.Equal(t, "Buy milk", res.Task.Title)
	assert.Equal(t, "Two litres", res.Task.Description)

	res = r.Execute(context.Background(), owner, model.ToolUpdateTask, map[string]string{
		model.ParamTaskID: task.ID,
		model.ParamTitle:  "Buy oat milk",
	})
	require.True(t, res.OK())
	assert.Equal(t, "Buy oat milk", res.Task.Title)
	assert.Equal(t, "Two litres", res.Task.Description)
}

func TestLengthLimits(t *testing.T) {
	tests := []struct {
		name   string
		tool   model.ToolName
		field  string
		length int
		ok     bool
	}{
		{"add description at limit", model.ToolAddTask, model.ParamDescription, model.MaxDescriptionLength, true},
		{"add description over limit", model.ToolAddTask, model.ParamDescription, model.MaxDescriptionLength + 1, false},
		{"update title at limit", model.ToolUpdateTask, model.ParamTitle, model.MaxTitleLength, true},
		{"update title over limit", model.ToolUpdateTask, model.ParamTitle, model.MaxTitleLength + 1, false},
		{"update description at limit", model.ToolUpdateTask, model.ParamDescription, model.MaxDescriptionLength, true},
		{"update description over limit", model.ToolUpdateTask, model.ParamDescription, model.MaxDescriptionLength + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(store.NewTaskStore())
			value := strings.Repeat("a", tt.length)

			params := map[string]string{tt.field: value}
			if tt.tool == model.ToolAddTask {
				params[model.ParamTitle] = "Buy milk"
			} else {
				params[model.ParamTaskID] = add(t, r, owner, "Buy milk").ID
			}

			res := r.Execute(context.Background(), owner, tt.tool, params)
			if !tt.ok {
				require.NotNil(t, res.Error)
				assert.Equal(t, model.ErrValidation, res.Error.Kind)
				assert.Equal(t, model.ReasonTooLong, res.Error.Reason)
				assert.Equal(t, tt.field, res.Error.Field)
				return
			}
			require.True(t, res.OK(), "%v", res.Error)
			if tt.field == model.ParamTitle {
				assert.Equal(t, value, res.Task.Title)
			} else {
				assert.Equal(t, value, res.Task.Description)
			}
		})
	}
}

func TestListTasks_Idempotent(t *testing.T) {
	r := sequentialRegistry(store.NewTaskStore())
	for _, title := range []string{"Buy milk", "Walk dog", "Call mom", "Pay rent"} {
		add(t, r, owner, title)
	}

	first := r.Execute(context.Background(), owner, model.ToolListTasks, nil)
	second := r.Execute(context.Background(), owner, model.ToolListTasks, nil)
	require.True(t, first.OK())
	require.True(t, second.OK())
	require.Len(t, first.Tasks, 4)
	assert.Equal(t, first.Tasks, second.Tasks)
}

type brokenStore struct {
	*store.TaskStore
	err error
}

func (s *brokenStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	return nil, s.err
}

func TestStoreFailuresAreServerErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason model.ErrorReason
	}{
		{"unavailable", errors.New("connection refused"), ""},
		{"timeout", context.DeadlineExceeded, model.ReasonTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(&brokenStore{TaskStore: store.NewTaskStore(), err: tt.err})
			res := r.Execute(context.Background(), owner, model.ToolListTasks, nil)
			require.NotNil(t, res.Error)
			assert.Equal(t, model.ErrServer, res.Error.Kind)
			assert.Equal(t, tt.reason, res.Error.Reason)
		})
	}
}

func TestDefinitions(t *testing.T) {
	defs := NewRegistry(store.NewTaskStore()).Definitions()
	require.Len(t, defs, 5)

	byName := make(map[model.ToolName]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	assert.True(t, byName[model.ToolDeleteTask].Destructive)
	assert.False(t, byName[model.ToolUpdateTask].Destructive)
	assert.False(t, byName[model.ToolListTasks].Mutating)
	assert.True(t, byName[model.ToolAddTask].Parameters[0].Required)
}
