package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

// finalWriteTimeout bounds bookkeeping writes issued after the run's context
// has been cancelled.
const finalWriteTimeout = 10 * time.Second

// lifecycle writes terminal transitions and emits the matching events. It
// keeps the caller's task snapshot in step with what was stored.
type lifecycle struct {
	tasks   store.TaskStore
	emitter events.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

func newLifecycle(tasks store.TaskStore, emitter events.EventEmitter, log *slog.Logger) *lifecycle {
	if emitter == nil {
		emitter = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &lifecycle{tasks: tasks, emitter: emitter, logger: log, now: time.Now}
}

// fail moves task to failed. A task that already left processing (usually
// because it was cancelled) keeps its state; that is logged, not returned.
func (l *lifecycle) fail(ctx context.Context, task *domain.Task, processed int, msg string) error {
	log := logger.FromContextOrDefault(ctx, l.logger)
	at := l.now().UTC()

	err := l.tasks.MarkFailed(ctx, task.ID, processed, msg, at)
	if errors.Is(err, store.ErrTransitionRejected) {
		log.InfoContext(ctx, "task left processing before failure was recorded",
			slog.String("error_message", msg))
		l.refresh(ctx, task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", task.ID, err)
	}

	task.ProcessedRows = max(task.ProcessedRows, min(processed, task.RowCount))
	task.ErrorMessage = msg
	l.apply(ctx, task, domain.TaskStatusFailed, at)

	log.WarnContext(ctx, "task failed",
		slog.Int("processed_rows", task.ProcessedRows),
		slog.String("error_message", msg))
	l.emit(ctx, events.TaskFailed, task)
	return nil
}

// complete moves task to completed, with the same rejection handling as fail.
func (l *lifecycle) complete(ctx context.Context, task *domain.Task, processed int) error {
	log := logger.FromContextOrDefault(ctx, l.logger)
	at := l.now().UTC()

	err := l.tasks.MarkCompleted(ctx, task.ID, processed, at)
	if errors.Is(err, store.ErrTransitionRejected) {
		log.InfoContext(ctx, "task left processing before completion was recorded")
		l.refresh(ctx, task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark task %s completed: %w", task.ID, err)
	}

	task.ProcessedRows = max(task.ProcessedRows, min(processed, task.RowCount))
	l.apply(ctx, task, domain.TaskStatusCompleted, at)

	log.InfoContext(ctx, "task completed", slog.Int("processed_rows", task.ProcessedRows))
	l.emit(ctx, events.TaskCompleted, task)
	return nil
}

// apply mirrors a stored transition onto the snapshot. A snapshot that no
// longer matches the store cannot take the edge locally, so it is re-read.
func (l *lifecycle) apply(ctx context.Context, task *domain.Task, to domain.TaskStatus, at time.Time) {
	if err := task.Transition(to, at); err != nil {
		logger.FromContextOrDefault(ctx, l.logger).WarnContext(ctx, "task snapshot out of date",
			slog.String("status", string(to)),
			slog.String("error", err.Error()))
		l.refresh(ctx, task)
	}
}

// refresh copies the stored state of task into the snapshot.
func (l *lifecycle) refresh(ctx context.Context, task *domain.Task) {
	current, err := l.tasks.GetByID(ctx, task.ID)
	if err != nil {
		logger.FromContextOrDefault(ctx, l.logger).WarnContext(ctx, "failed to re-read task",
			slog.String("error", err.Error()))
		return
	}
	*task = *current
}

// emit publishes an event. Observers never affect processing, so a handler
// error is only logged.
func (l *lifecycle) emit(ctx context.Context, eventType events.EventType, task *domain.Task) {
	if err := l.emitter.EmitEvent(ctx, events.NewTaskEvent(eventType, task)); err != nil {
		logger.FromContextOrDefault(ctx, l.logger).WarnContext(ctx, "failed to emit task event",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()))
	}
}

// detached returns a context that survives cancellation of ctx, for writes
// that record how far a stopped run got.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
}
