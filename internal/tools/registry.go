// Package tools implements the task operations the agent is allowed to perform.
package tools

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// TaskStore is the persistence contract the tools need. Implementations scope
// every lookup by user; ErrTaskNotFound is returned for missing tasks.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, userID, taskID string) (*model.Task, error)
	List(ctx context.Context, userID string) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, userID, taskID string) error
}

// Parameter describes one tool argument.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	MaxLength   int      `json:"max_length,omitempty"`
}

// Definition makes a tool self-describing.
type Definition struct {
	Name        model.ToolName `json:"name"`
	Description string         `json:"description"`
	Parameters  []Parameter    `json:"parameters"`
	Mutating    bool           `json:"mutating"`
	Destructive bool           `json:"destructive"`
}

// Tool is a single validated, ownership-checked task operation.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult
}

// Registry holds the task tools and executes them by name.
type Registry struct {
	store TaskStore
	tools map[model.ToolName]Tool
	order []model.ToolName

	now   func() time.Time
	newID func() string
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides task ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// NewRegistry creates a registry with the five task tools bound to store.
func NewRegistry(store TaskStore, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		tools: make(map[model.ToolName]Tool),
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(r)
	}

	r.register(&addTask{r})
	r.register(&listTasks{r})
	r.register(&completeTask{r})
	r.register(&deleteTask{r})
	r.register(&updateTask{r})

	return r
}

func (r *Registry) register(t Tool) {
	name := t.Definition().Name
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool for userID. Failures are reported in the
// result, never as a Go error.
func (r *Registry) Execute(ctx context.Context, userID string, name model.ToolName, params map[string]string) model.ToolResult {
	if userID == "" {
		return model.Failed(model.ErrAuthorization, "", "", "no user identity")
	}
	t, ok := r.tools[name]
	if !ok {
		return model.Failed(model.ErrValidation, "tool", model.ReasonInvalid, "unknown tool "+string(name))
	}
	if params == nil {
		params = map[string]string{}
	}
	return t.Execute(ctx, userID, params)
}

// Lookup returns the user's tasks matching filter, newest first. It is a
// read-only helper for reference resolution and is not a tool invocation.
func (r *Registry) Lookup(ctx context.Context, userID string, filter model.StatusFilter) ([]model.TaskSummary, error) {
	tasks, err := r.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return summarize(tasks, userID, filter), nil
}

// fetchOwned loads a task and re-checks that it belongs to userID.
func (r *Registry) fetchOwned(ctx context.Context, userID, taskID string) (*model.Task, *model.ToolError) {
	if taskID == "" {
		return nil, &model.ToolError{Kind: model.ErrValidation, Field: model.ParamTaskID, Reason: model.ReasonMissing, Message: "task id is required"}
	}
	task, err := r.store.Get(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			return nil, &model.ToolError{Kind: model.ErrNotFound, Field: model.ParamTaskID, Message: "task not found"}
		}
		return nil, storeFailure(err).Error
	}
	if task.UserID != userID {
		return nil, &model.ToolError{Kind: model.ErrAuthorization, Field: model.ParamTaskID, Message: "task belongs to another user"}
	}
	return task, nil
}

func storeFailure(err error) model.ToolResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Failed(model.ErrServer, "", model.ReasonTimeout, "task store timed out")
	}
	return model.Failed(model.ErrServer, "", "", "task store unavailable")
}

// summarize filters tasks owned by userID and orders them newest-created first.
func summarize(tasks []model.Task, userID string, filter model.StatusFilter) []model.TaskSummary {
	owned := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.UserID == userID && filter.Matches(t.Status) {
			owned = append(owned, t)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})

	out := make([]model.TaskSummary, 0, len(owned))
	for i := range owned {
		out = append(out, owned[i].Summary())
	}
	return out
}
