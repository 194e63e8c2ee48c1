package tools

import (
	"context"

	"github.com/capitalize-ai/task-agent/internal/model"
)

var (
	titleParam = Parameter{
		Name:        model.ParamTitle,
		Type:        "string",
		Description: "Short task title",
		MaxLength:   model.MaxTitleLength,
	}
	descriptionParam = Parameter{
		Name:        model.ParamDescription,
		Type:        "string",
		Description: "Optional longer description",
		MaxLength:   model.MaxDescriptionLength,
	}
	taskIDParam = Parameter{
		Name:        model.ParamTaskID,
		Type:        "string",
		Description: "Identifier of an existing task",
		Required:    true,
	}
)

type addTask struct{ r *Registry }

func (t *addTask) Definition() Definition {
	title := titleParam
	title.Required = true
	return Definition{
		Name:        model.ToolAddTask,
		Description: "Create a new pending task",
		Parameters:  []Parameter{title, descriptionParam},
		Mutating:    true,
	}
}

func (t *addTask) Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult {
	title, verr := ValidateTitle(params[model.ParamTitle])
	if verr != nil {
		return failedWith(verr)
	}
	desc, verr := ValidateDescription(params[model.ParamDescription])
	if verr != nil {
		return failedWith(verr)
	}

	now := t.r.now()
	task := &model.Task{
		ID:          t.r.newID(),
		UserID:      userID,
		Title:       title,
		Description: desc,
		Status:      model.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.r.store.Create(ctx, task); err != nil {
		return storeFailure(err)
	}

	summary := task.Summary()
	return model.ToolResult{Task: &summary}
}

type listTasks struct{ r *Registry }

func (t *listTasks) Definition() Definition {
	return Definition{
		Name:        model.ToolListTasks,
		Description: "List the user's tasks, newest first",
		Parameters: []Parameter{{
			Name:        model.ParamStatus,
			Type:        "string",
			Description: "Which tasks to include",
			Enum:        []string{string(model.StatusAll), string(model.StatusPending), string(model.StatusCompleted)},
		}},
	}
}

func (t *listTasks) Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult {
	filter := model.StatusFilter(params[model.ParamStatus])
	if filter == "" {
		filter = model.StatusAll
	}
	if !filter.Valid() {
		return model.Failed(model.ErrValidation, model.ParamStatus, model.ReasonInvalid, "status must be all, pending or completed")
	}

	tasks, err := t.r.store.List(ctx, userID)
	if err != nil {
		return storeFailure(err)
	}
	return model.ToolResult{Tasks: summarize(tasks, userID, filter)}
}

type completeTask struct{ r *Registry }

func (t *completeTask) Definition() Definition {
	return Definition{
		Name:        model.ToolCompleteTask,
		Description: "Mark a pending task as completed",
		Parameters:  []Parameter{taskIDParam},
		Mutating:    true,
	}
}

func (t *completeTask) Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult {
	task, terr := t.r.fetchOwned(ctx, userID, params[model.ParamTaskID])
	if terr != nil {
		return failedWith(terr)
	}
	if task.Status == model.TaskStatusCompleted {
		summary := task.Summary()
		return model.ToolResult{
			Task:  &summary,
			Error: &model.ToolError{Kind: model.ErrInvalidState, Field: model.ParamTaskID, Reason: model.ReasonCompleted, Message: "task is already completed"},
		}
	}

	task.Status = model.TaskStatusCompleted
	task.UpdatedAt = t.r.now()
	if err := t.r.store.Update(ctx, task); err != nil {
		return storeFailure(err)
	}

	summary := task.Summary()
	return model.ToolResult{Task: &summary}
}

type deleteTask struct{ r *Registry }

func (t *deleteTask) Definition() Definition {
	return Definition{
		Name:        model.ToolDeleteTask,
		Description: "Permanently delete a task. Requires explicit user confirmation.",
		Parameters:  []Parameter{taskIDParam},
		Mutating:    true,
		Destructive: true,
	}
}

// Execute trusts its caller to have obtained confirmation.
func (t *deleteTask) Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult {
	task, terr := t.r.fetchOwned(ctx, userID, params[model.ParamTaskID])
	if terr != nil {
		return failedWith(terr)
	}
	if err := t.r.store.Delete(ctx, userID, task.ID); err != nil {
		return storeFailure(err)
	}
	return model.ToolResult{Task: &model.TaskSummary{ID: task.ID, Title: task.Title}}
}

type updateTask struct{ r *Registry }

func (t *updateTask) Definition() Definition {
	return Definition{
		Name:        model.ToolUpdateTask,
		Description: "Change the title and/or description of a task",
		Parameters:  []Parameter{taskIDParam, titleParam, descriptionParam},
		Mutating:    true,
	}
}

func (t *updateTask) Execute(ctx context.Context, userID string, params map[string]string) model.ToolResult {
	rawTitle, hasTitle := params[model.ParamTitle]
	rawDesc, hasDesc := params[model.ParamDescription]
	if !hasTitle && !hasDesc {
		return model.Failed(model.ErrValidation, "", model.ReasonMissing, "provide a new title or description")
	}

	var title, desc string
	var verr *model.ToolError
	if hasTitle {
		if title, verr = ValidateTitle(rawTitle); verr != nil {
			return failedWith(verr)
		}
	}
	if hasDesc {
		if desc, verr = ValidateDescription(rawDesc); verr != nil {
			return failedWith(verr)
		}
	}

	task, terr := t.r.fetchOwned(ctx, userID, params[model.ParamTaskID])
	if terr != nil {
		return failedWith(terr)
	}

	if hasTitle {
		task.Title = title
	}
	if hasDesc {
		task.Description = desc
	}
	task.UpdatedAt = t.r.now()
	if err := t.r.store.Update(ctx, task); err != nil {
		return storeFailure(err)
	}

	summary := task.Summary()
	return model.ToolResult{Task: &summary}
}
