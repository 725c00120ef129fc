// Package storage defines the task persistence contract and its sentinel
// errors. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrConflict is returned when a task with the given ID already exists.
	ErrConflict = errors.New("task already exists")
)

// ListOptions controls pagination for List.
type ListOptions struct {
	// Limit is the maximum number of tasks to return. Zero means the
	// store default.
	Limit int

	// After is a task ID cursor; only tasks created before it are
	// returned (newest first ordering).
	After string

	// Status filters by lifecycle state when non-empty.
	Status task.Status
}

// TaskList is a page of tasks.
type TaskList struct {
	Tasks   []*task.Task `json:"data"`
	HasMore bool         `json:"has_more"`
}

// TaskStore persists tasks across their lifecycle. Implementations must
// be safe for concurrent use; stored tasks are snapshots and callers
// must not mutate them after handing them over.
type TaskStore interface {
	// Save persists a new task. Returns ErrConflict if the ID exists.
	Save(ctx context.Context, t *task.Task) error

	// Update overwrites an existing task. Returns ErrNotFound if the
	// task does not exist.
	Update(ctx context.Context, t *task.Task) error

	// Get retrieves a task by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*task.Task, error)

	// List returns a paginated list of tasks, newest first.
	List(ctx context.Context, opts ListOptions) (*TaskList, error)

	// Delete removes a task by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}
