package model

import (
	"fmt"
)

// ToolName identifies one of the task operations the agent can invoke.
type ToolName string

const (
	ToolAddTask      ToolName = "add_task"
	ToolListTasks    ToolName = "list_tasks"
	ToolCompleteTask ToolName = "complete_task"
	ToolDeleteTask   ToolName = "delete_task"
	ToolUpdateTask   ToolName = "update_task"
)

// Tool parameter names.
const (
	ParamTitle       = "title"
	ParamDescription = "description"
	ParamStatus      = "status"
	ParamTaskID      = "task_id"
)

// ToolCall records one executed tool invocation and its outcome.
type ToolCall struct {
	Name       ToolName          `json:"name"`
	Parameters map[string]string `json:"parameters"`
	Result     ToolResult        `json:"result"`
}

// ToolResult is a discriminated result: a nil Error means success. List
// results use Tasks, everything else uses Task. A failed result may still set
// Task to identify the task the failure concerns.
type ToolResult struct {
	Task  *TaskSummary  `json:"task,omitempty"`
	Tasks []TaskSummary `json:"tasks,omitempty"`
	Error *ToolError    `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool {
	return r.Error == nil
}

// ErrorKind classifies tool failures.
type ErrorKind string

const (
	ErrValidation    ErrorKind = "validation_error"
	ErrNotFound      ErrorKind = "not_found_error"
	ErrInvalidState  ErrorKind = "invalid_state_error"
	ErrAuthorization ErrorKind = "authorization_error"
	ErrServer        ErrorKind = "server_error"
)

// ErrorReason narrows a validation failure so callers can phrase a specific reply.
type ErrorReason string

const (
	ReasonEmpty     ErrorReason = "empty"
	ReasonTooLong   ErrorReason = "too_long"
	ReasonInvalid   ErrorReason = "invalid"
	ReasonMissing   ErrorReason = "missing"
	ReasonCompleted ErrorReason = "already_completed"
	ReasonTimeout   ErrorReason = "timeout"
)

// ToolError describes why a tool call failed.
type ToolError struct {
	Kind    ErrorKind   `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Reason  ErrorReason `json:"reason,omitempty"`
	Message string      `json:"message"`
}

func (e *ToolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Failed builds a failed ToolResult.
func Failed(kind ErrorKind, field string, reason ErrorReason, message string) ToolResult {
	return ToolResult{Error: &ToolError{Kind: kind, Field: field, Reason: reason, Message: message}}
}
