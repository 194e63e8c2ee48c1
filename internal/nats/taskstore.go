package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/task-agent/internal/model"
)

// DefaultTaskBucket is the KeyValue bucket holding tasks.
const DefaultTaskBucket = "TASKS"

// TaskStore keeps tasks in a JetStream KeyValue bucket under
// "<user token>.<task id>", so every lookup is scoped to one user.
type TaskStore struct {
	kv jetstream.KeyValue
}

// NewTaskStore opens the bucket, creating it if it does not exist.
func NewTaskStore(ctx context.Context, client *Client, bucket string, storage jetstream.StorageType) (*TaskStore, error) {
	if bucket == "" {
		bucket = DefaultTaskBucket
	}
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Tasks by user",
			History:     1,
			Storage:     storage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open task bucket: %w", err)
	}

	return &TaskStore{kv: kv}, nil
}

func taskKey(userID, taskID string) string {
	return token(userID) + "." + taskID
}

// Create stores a new task. Task IDs must be unique per user.
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if _, err := s.kv.Create(ctx, taskKey(task.UserID, task.ID), data); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get returns the user's task.
func (s *TaskStore) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, _, err := s.get(ctx, userID, taskID)
	return task, err
}

func (s *TaskStore) get(ctx context.Context, userID, taskID string) (*model.Task, uint64, error) {
	entry, err := s.kv.Get(ctx, taskKey(userID, taskID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil, 0, model.ErrTaskNotFound
		}
		return nil, 0, fmt.Errorf("failed to get task: %w", err)
	}

	var task model.Task
	if err := json.Unmarshal(entry.Value(), &task); err != nil {
		return nil, 0, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, entry.Revision(), nil
}

// List returns every task the user owns, in no particular order.
func (s *TaskStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	watcher, err := s.kv.Watch(ctx, token(userID)+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("failed to watch tasks: %w", err)
	}
	defer watcher.Stop()

	var tasks []model.Task
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil, errors.New("task watcher closed")
			}
			// A nil entry marks the end of the initial values.
			if entry == nil {
				return tasks, nil
			}
			var task model.Task
			if err := json.Unmarshal(entry.Value(), &task); err != nil {
				return nil, fmt.Errorf("failed to decode task %s: %w", entry.Key(), err)
			}
			tasks = append(tasks, task)
		}
	}
}

// Update replaces an existing task. Concurrent writers lose with a revision
// mismatch rather than silently overwriting.
func (s *TaskStore) Update(ctx context.Context, task *model.Task) error {
	_, rev, err := s.get(ctx, task.UserID, task.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if _, err := s.kv.Update(ctx, taskKey(task.UserID, task.ID), data, rev); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Delete removes the user's task.
func (s *TaskStore) Delete(ctx context.Context, userID, taskID string) error {
	_, rev, err := s.get(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, taskKey(userID, taskID), jetstream.LastRevision(rev)); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
