// Package store provides in-memory implementations of the task store and the
// conversation message log, used for local development and tests.
package store

import (
	"context"
	"sync"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// TaskStore is an in-memory task store keyed by user.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]map[string]model.Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]map[string]model.Task)}
}

// Create stores a new task.
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.tasks[task.UserID]
	if !ok {
		byID = make(map[string]model.Task)
		s.tasks[task.UserID] = byID
	}
	byID[task.ID] = *task
	return nil
}

// Get returns a copy of the user's task.
func (s *TaskStore) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[userID][taskID]
	if !ok {
		return nil, model.ErrTaskNotFound
	}
	return &task, nil
}

// List returns all of the user's tasks in no particular order.
func (s *TaskStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Task, 0, len(s.tasks[userID]))
	for _, t := range s.tasks[userID] {
		out = append(out, t)
	}
	return out, nil
}

// Update replaces an existing task.
func (s *TaskStore) Update(ctx context.Context, task *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.UserID][task.ID]; !ok {
		return model.ErrTaskNotFound
	}
	s.tasks[task.UserID][task.ID] = *task
	return nil
}

// Delete removes the user's task.
func (s *TaskStore) Delete(ctx context.Context, userID, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[userID][taskID]; !ok {
		return model.ErrTaskNotFound
	}
	delete(s.tasks[userID], taskID)
	return nil
}
