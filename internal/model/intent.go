package model

// IntentKind is the operation a user utterance maps to.
type IntentKind string

const (
	IntentAddTask      IntentKind = "add_task"
	IntentListTasks    IntentKind = "list_tasks"
	IntentCompleteTask IntentKind = "complete_task"
	IntentDeleteTask   IntentKind = "delete_task"
	IntentUpdateTask   IntentKind = "update_task"
	IntentUnknown      IntentKind = "unknown"
)

// Tool returns the tool that executes the intent, or "" for IntentUnknown.
func (k IntentKind) Tool() ToolName {
	switch k {
	case IntentAddTask, IntentListTasks, IntentCompleteTask, IntentDeleteTask, IntentUpdateTask:
		return ToolName(k)
	}
	return ""
}

// Intent is a classified utterance with whatever parameters could be extracted.
// Empty strings mean "not provided".
type Intent struct {
	Kind IntentKind `json:"intent"`

	// AddTask and UpdateTask
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// ListTasks
	Status StatusFilter `json:"status,omitempty"`

	// CompleteTask, DeleteTask and UpdateTask
	TaskID    string `json:"task_id,omitempty"`
	TaskTitle string `json:"task_title,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// NeedsTask reports whether the intent operates on an existing task.
func (i Intent) NeedsTask() bool {
	switch i.Kind {
	case IntentCompleteTask, IntentDeleteTask, IntentUpdateTask:
		return true
	}
	return false
}
