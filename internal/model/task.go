package model

import (
	"errors"
	"time"
)

// ErrTaskNotFound is returned by task stores when a task does not exist for the given user.
var ErrTaskNotFound = errors.New("task not found")

// Task field bounds.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// StatusFilter selects tasks by status when listing.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = "pending"
	StatusCompleted StatusFilter = "completed"
)

// Valid reports whether f is one of the known filters.
func (f StatusFilter) Valid() bool {
	switch f {
	case StatusAll, StatusPending, StatusCompleted:
		return true
	}
	return false
}

// Matches reports whether a task with status s passes the filter.
func (f StatusFilter) Matches(s TaskStatus) bool {
	switch f {
	case StatusPending:
		return s == TaskStatusPending
	case StatusCompleted:
		return s == TaskStatusCompleted
	default:
		return true
	}
}

// Task is a todo item owned by a single user.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Summary returns the user-facing projection of the task.
func (t *Task) Summary() TaskSummary {
	return TaskSummary{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
	}
}

// TaskSummary is what tools return and what conversations remember about a task.
type TaskSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
}
