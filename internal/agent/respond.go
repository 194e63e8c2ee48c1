package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/task-agent/internal/model"
)

const (
	msgUnknown       = "I can help you add, list, complete, update, or delete tasks. What would you like to do?"
	msgWhichTask     = "Which task do you mean? You can say its name, or ask me to list your tasks."
	msgAmbiguousTask = "More than one task matches that. Which one do you mean? You can say its full name, or ask me to list your tasks."
	msgNotFound      = "I couldn't find that task. Would you like me to list your current tasks?"
	msgAccessDenied  = "Sorry, I can't access that task."
	msgServerError   = "Something went wrong on my end. Please try again."
	msgYesOrNo       = "Please say yes or no."
	msgNoChange      = "What would you like to change? You can give me a new title or a new description."
)

// successText phrases a successful tool call.
func successText(call model.ToolCall, filter model.StatusFilter) string {
	switch call.Name {
	case model.ToolAddTask:
		return fmt.Sprintf("I've created %q for you.", call.Result.Task.Title)
	case model.ToolListTasks:
		return listText(call.Result.Tasks, filter)
	case model.ToolCompleteTask:
		return fmt.Sprintf("Nice work! I've marked %q as complete.", call.Result.Task.Title)
	case model.ToolDeleteTask:
		return fmt.Sprintf("I've deleted %q.", call.Result.Task.Title)
	case model.ToolUpdateTask:
		return fmt.Sprintf("Done. %q is updated.", call.Result.Task.Title)
	}
	return "Done."
}

func listText(tasks []model.TaskSummary, filter model.StatusFilter) string {
	qualifier := ""
	if filter == model.StatusPending || filter == model.StatusCompleted {
		qualifier = string(filter) + " "
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("You don't have any %stasks.", qualifier)
	}

	var b strings.Builder
	if len(tasks) == 1 {
		fmt.Fprintf(&b, "You have 1 %stask:", qualifier)
	} else {
		fmt.Fprintf(&b, "You have %d %stasks:", len(tasks), qualifier)
	}
	for i, t := range tasks {
		mark := " "
		if t.Status == model.TaskStatusCompleted {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s", i+1, mark, t.Title)
	}
	return b.String()
}

// errorText maps a tool failure to a short, non-technical sentence. No
// internal identifiers or store field names reach the user.
func errorText(call model.ToolCall) string {
	e := call.Result.Error
	switch e.Kind {
	case model.ErrValidation:
		return validationText(e)
	case model.ErrNotFound:
		return msgNotFound
	case model.ErrInvalidState:
		if call.Result.Task != nil {
			return fmt.Sprintf("%q is already marked as complete.", call.Result.Task.Title)
		}
		return "That task is already marked as complete."
	case model.ErrAuthorization:
		return msgAccessDenied
	default:
		return msgServerError
	}
}

func validationText(e *model.ToolError) string {
	switch {
	case e.Field == model.ParamTitle && e.Reason == model.ReasonEmpty:
		return "A task needs a title. What should I call it?"
	case e.Field == model.ParamTitle && e.Reason == model.ReasonTooLong:
		return fmt.Sprintf("That title is too long. Please keep it to %d characters or fewer.", model.MaxTitleLength)
	case e.Field == model.ParamDescription && e.Reason == model.ReasonTooLong:
		return fmt.Sprintf("That description is too long. Please keep it to %d characters or fewer.", model.MaxDescriptionLength)
	case e.Field == model.ParamStatus:
		return "I can list all, pending, or completed tasks. Which would you like?"
	case e.Reason == model.ReasonMissing && e.Field == "":
		return msgNoChange
	case e.Field == model.ParamTaskID:
		return msgWhichTask
	default:
		return "I couldn't use that. Could you rephrase it?"
	}
}

func cancelText(p *model.PendingConfirmation) string {
	switch p.ToolName {
	case model.ToolDeleteTask:
		return fmt.Sprintf("Okay, I won't delete %q.", p.TaskTitle)
	case model.ToolUpdateTask:
		return fmt.Sprintf("Okay, I'll leave %q as it is.", p.TaskTitle)
	}
	return "Okay, cancelled."
}

func noTasksText(filter model.StatusFilter) string {
	if filter == model.StatusPending {
		return "You don't have any pending tasks."
	}
	return "You don't have any tasks yet."
}
