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

// ProgressTracker persists processed-row counts. Each write is its own
// statement, so progress survives whatever happens to the run afterwards.
type ProgressTracker struct {
	*lifecycle
}

// NewProgressTracker creates a ProgressTracker. A nil emitter discards events.
func NewProgressTracker(tasks store.TaskStore, emitter events.EventEmitter, logger *slog.Logger) (*ProgressTracker, error) {
	if tasks == nil {
		return nil, ErrNilStore
	}
	return &ProgressTracker{lifecycle: newLifecycle(tasks, emitter, logger)}, nil
}

// Advance records that processed rows of task are done. The stored counter
// never moves backwards and never exceeds the row count; the snapshot is
// updated the same way.
func (p *ProgressTracker) Advance(ctx context.Context, task *domain.Task, processed int) error {
	if err := p.tasks.UpdateProgress(ctx, task.ID, processed); err != nil {
		return fmt.Errorf("failed to record progress for task %s: %w", task.ID, err)
	}

	task.ProcessedRows = max(task.ProcessedRows, min(processed, task.RowCount))
	p.emit(ctx, events.TaskProgress, task)
	return nil
}

// Heartbeat touches the task every interval until the returned stop function
// is called, so a run blocked in a long evaluation is not taken for stale.
// Failed touches are logged. A non-positive interval disables it.
func (p *ProgressTracker) Heartbeat(ctx context.Context, taskID uuid.UUID, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := p.tasks.Touch(ctx, taskID, p.now().UTC())
				if err != nil && ctx.Err() == nil {
					logger.FromContextOrDefault(ctx, p.logger).WarnContext(ctx, "failed to refresh task heartbeat",
						slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
