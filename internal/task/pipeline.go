package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

// Config holds configuration for the pipeline
type Config struct {
	// TaskType is the task type the poller picks up
	TaskType domain.TaskType

	// PollInterval is the time between scheduling ticks
	PollInterval time.Duration

	// StaleAfter is the inactivity after which a processing task is resumed
	StaleAfter time.Duration

	// OutcomeBuffer is the capacity of the outcome channel
	OutcomeBuffer int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		TaskType:      domain.TaskTypeRAGEvaluation,
		PollInterval:  30 * time.Second,
		StaleAfter:    30 * time.Minute,
		OutcomeBuffer: 16,
	}
}

// Pipeline is the entry point to background task processing. It owns the
// poller, the worker pool and the handler registry.
type Pipeline struct {
	*lifecycle
	taskType domain.TaskType
	registry *Registry
	pool     *WorkerPool
	poller   *Poller
}

// NewPipeline wires a pipeline around the registry. Handlers may still be
// registered afterwards, until Start.
func NewPipeline(
	config Config,
	tasks store.TaskStore,
	registry *Registry,
	emitter events.EventEmitter,
	log *slog.Logger,
) (*Pipeline, error) {
	if tasks == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Pipeline{
		lifecycle: newLifecycle(tasks, emitter, log.With(slog.String("component", "pipeline"))),
		taskType:  config.TaskType,
		registry:  registry,
	}

	pool, err := NewWorkerPool(p.dispatch, tasks, emitter,
		WorkerPoolConfig{OutcomeBuffer: config.OutcomeBuffer}, log)
	if err != nil {
		return nil, err
	}
	claimer, err := NewClaimer(tasks, emitter, log.With(slog.String("component", "claimer")))
	if err != nil {
		return nil, err
	}
	poller, err := NewPoller(PollerConfig{
		TaskType:   config.TaskType,
		Interval:   config.PollInterval,
		StaleAfter: config.StaleAfter,
	}, tasks, claimer, pool, log)
	if err != nil {
		return nil, err
	}

	p.pool = pool
	p.poller = poller
	return p, nil
}

// Start launches the worker and the poll loop. It returns ErrNoHandler if
// nothing is registered for the polled task type.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.checkHandler(); err != nil {
		return err
	}
	if err := p.pool.Start(ctx); err != nil {
		return err
	}
	p.poller.Start(ctx)
	return nil
}

// Stop halts polling, cancels the running task and waits for it to return.
func (p *Pipeline) Stop() {
	p.poller.Stop()
	p.pool.Stop()
}

// Outcomes reports every task run finished by the worker pool.
func (p *Pipeline) Outcomes() <-chan Outcome {
	return p.pool.Outcomes()
}

// PollOnce runs one scheduling tick. See Poller.PollOnce.
func (p *Pipeline) PollOnce(ctx context.Context) (bool, error) {
	return p.poller.PollOnce(ctx)
}

// RunOnce claims the next task, if any, runs it to the end and returns its
// outcome. It returns nil when nothing was claimed. The pipeline must not be
// started with Start as well.
func (p *Pipeline) RunOnce(ctx context.Context) (*Outcome, error) {
	if err := p.checkHandler(); err != nil {
		return nil, err
	}
	if err := p.pool.Start(ctx); err != nil {
		return nil, err
	}

	ok, err := p.poller.PollOnce(ctx)
	if err != nil || !ok {
		return nil, err
	}

	select {
	case o, open := <-p.pool.Outcomes():
		if !open {
			return nil, ErrPoolClosed
		}
		return &o, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessTask runs the handler for an already claimed task and waits for it.
// It shares the worker with the poller: it returns ErrPoolBusy while the pool
// holds a task and ErrNotClaimed if the task is not processing.
func (p *Pipeline) ProcessTask(ctx context.Context, taskID uuid.UUID) error {
	// under pollMu so a tick never claims a task it cannot hand over
	p.poller.pollMu.Lock()
	err := p.pool.acquire()
	p.poller.pollMu.Unlock()
	if err != nil {
		return fmt.Errorf("cannot process task %s: %w", taskID, err)
	}
	defer p.pool.release()

	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	if task.Status != domain.TaskStatusProcessing {
		return fmt.Errorf("%w: task %s is %s", ErrNotClaimed, taskID, task.Status)
	}

	return p.pool.Execute(ctx, task).Err
}

// CancelTask cancels a queued or processing task. A running task stops
// before its next item. Returns store.ErrTransitionRejected if the task has
// already stopped.
func (p *Pipeline) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	if err := p.tasks.Cancel(ctx, taskID, p.now().UTC()); err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
	}

	log := logger.FromContextOrDefault(ctx, p.logger)
	log.InfoContext(ctx, "task cancelled", slog.String("task_id", taskID.String()))

	if task, err := p.tasks.GetByID(ctx, taskID); err == nil {
		p.emit(ctx, events.TaskCancelled, task)
	}
	return nil
}

// Status returns the stored task, with its derived progress available through
// Task.Progress.
func (p *Pipeline) Status(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	return task, nil
}

func (p *Pipeline) checkHandler() error {
	if _, ok := p.registry.Lookup(p.taskType); !ok {
		return fmt.Errorf("%w for task type %q", ErrNoHandler, p.taskType)
	}
	return nil
}

// dispatch routes a claimed task to the handler registered for its type. A
// task without a handler is failed.
func (p *Pipeline) dispatch(ctx context.Context, task *domain.Task) error {
	h, ok := p.registry.Lookup(task.Type)
	if !ok {
		ctx = logger.WithLogger(ctx, p.logger.With(
			slog.String("task_id", task.ID.String()),
			slog.String("task_type", string(task.Type))))
		msg := fmt.Sprintf("%s for task type %q", ErrNoHandler, task.Type)
		if err := p.fail(ctx, task, task.ProcessedRows, msg); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w: %s", ErrTaskFailed, ErrNoHandler, task.Type)
	}
	return h.Run(ctx, task)
}
