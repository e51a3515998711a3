package port

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateTask is returned by Enqueue when a task with the same unique
// key is still within its UniqueTTL.
var ErrDuplicateTask = errors.New("queue: duplicate task")

// Task is a background job: a stable type name plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the backend to retry, so handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption is mapped onto the backend as best effort. Zero values mean unspecified.
type EnqueueOption struct {
	Queue    string
	MaxRetry int
	// UniqueTTL rejects an identical task (same type and payload) for this long.
	UniqueTTL time.Duration
	// Retention keeps a completed task inspectable for this long.
	Retention time.Duration
}

// Client enqueues tasks.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers until Run's context is canceled or Stop is called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
