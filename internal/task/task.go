package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
)

// Common errors returned by the task package
var (
	ErrNilStore       = errors.New("store cannot be nil")
	ErrNilEvaluator   = errors.New("evaluator cannot be nil")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrNilDB          = errors.New("database cannot be nil")
	ErrNoHandler      = errors.New("no handler registered")
	ErrHandlerExists  = errors.New("handler already registered")
	ErrPoolBusy       = errors.New("worker pool is busy")
	ErrPoolClosed     = errors.New("worker pool is closed")
	ErrNotClaimed     = errors.New("task is not processing")
	ErrTaskFailed     = errors.New("task failed")
	ErrInvalidConfig  = errors.New("invalid pipeline configuration")
	ErrInvalidRequest = errors.New("invalid task submission")
)

// Handler runs a claimed task to completion. Implementations record the
// task's terminal state themselves; the returned error is informational.
type Handler interface {
	Run(ctx context.Context, task *domain.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *domain.Task) error

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, task *domain.Task) error {
	return f(ctx, task)
}

// Evaluator produces the result for one item. *evaluation.Gateway satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, item *domain.Item) (*domain.Result, error)
}

// Outcome describes how one dispatched task run ended.
type Outcome struct {
	TaskID        uuid.UUID
	TaskType      domain.TaskType
	Status        domain.TaskStatus
	ProcessedRows int
	Duration      time.Duration
	// Err is the handler's error, nil when the run ended without one.
	Err error
}
