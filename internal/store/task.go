package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
)

// TaskStore defines the interface for task persistence.
//
// Every status change is a conditional update on the current status, so two
// processes racing on the same task cannot both win.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// FindOldestQueued returns the queued task of the given type with the
	// earliest creation time. Returns ErrTaskNotFound if none is queued.
	FindOldestQueued(ctx context.Context, taskType domain.TaskType) (*domain.Task, error)

	// Claim moves a task from queueing to processing and stamps started_at.
	// Returns false if the task was no longer queueing.
	Claim(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)

	// ReclaimStale takes over one processing task of the given type whose last
	// write is older than staleBefore, refreshing updated_at so no other
	// process reclaims it too. Returns ErrTaskNotFound if none qualifies.
	ReclaimStale(ctx context.Context, taskType domain.TaskType, staleBefore time.Time) (*domain.Task, error)

	// UpdateProgress records processed rows. The stored value never decreases
	// and never exceeds row_count. It is a single autocommitted statement.
	UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int) error

	// Touch refreshes updated_at of a processing task without changing it,
	// marking the run as alive for ReclaimStale.
	// Returns ErrTransitionRejected if the task is not processing.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkCompleted moves a processing task to completed.
	// Returns ErrTransitionRejected if the task is not processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int, at time.Time) error

	// MarkFailed moves a processing task to failed with an error message.
	// Returns ErrTransitionRejected if the task is not processing.
	MarkFailed(ctx context.Context, id uuid.UUID, processedRows int, errorMessage string, at time.Time) error

	// Cancel moves a queueing or processing task to cancelled.
	// Returns ErrTransitionRejected if the task is already terminal.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
