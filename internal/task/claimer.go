package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/store"
)

// Claimer takes ownership of queued tasks.
type Claimer struct {
	*lifecycle
}

// NewClaimer creates a Claimer. A nil emitter discards events.
func NewClaimer(tasks store.TaskStore, emitter events.EventEmitter, logger *slog.Logger) (*Claimer, error) {
	if tasks == nil {
		return nil, ErrNilStore
	}
	return &Claimer{lifecycle: newLifecycle(tasks, emitter, logger)}, nil
}

// Claim atomically moves task from queueing to processing. It returns false
// without error when the task was no longer queueing: another instance won
// the race, or the task was cancelled. On success the snapshot is updated.
func (c *Claimer) Claim(ctx context.Context, task *domain.Task) (bool, error) {
	at := c.now().UTC()

	ok, err := c.tasks.Claim(ctx, task.ID, at)
	if err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", task.ID, err)
	}
	if !ok {
		c.logger.DebugContext(ctx, "task no longer queued, claim skipped",
			slog.String("task_id", task.ID.String()))
		return false, nil
	}

	task.Status = domain.TaskStatusProcessing
	task.StartedAt = &at
	task.UpdatedAt = at

	c.logger.InfoContext(ctx, "task claimed",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)),
		slog.Int("row_count", task.RowCount))
	c.emit(ctx, events.TaskClaimed, task)
	return true, nil
}
