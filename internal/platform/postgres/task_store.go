package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

const taskColumns = `id, owner_id, filename, sheet_name, type, status, row_count,
	processed_rows, error_message, created_at, updated_at,
	started_at, completed_at, cancelled_at, failed_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                                         domain.Task
		taskType, status                          string
		startedAt, completedAt, cancelled, failed sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Filename,
		&t.SheetName,
		&taskType,
		&status,
		&t.RowCount,
		&t.ProcessedRows,
		&t.ErrorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
		&startedAt,
		&completedAt,
		&cancelled,
		&failed,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(status)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.CancelledAt = timePtr(cancelled)
	t.FailedAt = timePtr(failed)
	return &t, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, owner_id, filename, sheet_name, type, status, row_count,
			processed_rows, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Filename,
		task.SheetName,
		string(task.Type),
		string(task.Status),
		task.RowCount,
		task.ProcessedRows,
		task.ErrorMessage,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)),
		slog.Int("row_count", task.RowCount))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return task, nil
}

// FindOldestQueued implements store.TaskStore.FindOldestQueued
func (s *PostgresTaskStore) FindOldestQueued(ctx context.Context, taskType domain.TaskType) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE type = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, string(taskType), string(domain.TaskStatusQueueing)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to find queued task",
			slog.String("error", err.Error()),
			slog.String("task_type", string(taskType)))
		return nil, fmt.Errorf("failed to find queued task: %w", MapError(err))
	}
	return task, nil
}

// Claim implements store.TaskStore.Claim
func (s *PostgresTaskStore) Claim(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		string(domain.TaskStatusProcessing),
		startedAt,
		string(domain.TaskStatusQueueing),
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to claim task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return false, fmt.Errorf("failed to claim task: %w", MapError(err))
	}

	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReclaimStale implements store.TaskStore.ReclaimStale
func (s *PostgresTaskStore) ReclaimStale(
	ctx context.Context,
	taskType domain.TaskType,
	staleBefore time.Time,
) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET updated_at = $4
		WHERE id = (
			SELECT id FROM tasks
			WHERE type = $1 AND status = $2 AND updated_at < $3
			ORDER BY updated_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = $2 AND updated_at < $3
		RETURNING ` + taskColumns

	now := time.Now().UTC()
	task, err := scanTask(s.db.QueryRowContext(ctx, query,
		string(taskType),
		string(domain.TaskStatusProcessing),
		staleBefore,
		now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to reclaim stale task",
			slog.String("error", err.Error()),
			slog.String("task_type", string(taskType)))
		return nil, fmt.Errorf("failed to reclaim stale task: %w", MapError(err))
	}
	return task, nil
}

// UpdateProgress implements store.TaskStore.UpdateProgress
func (s *PostgresTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int) error {
	if processedRows < 0 {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidProcessed)
	}

	query := `
		UPDATE tasks
		SET processed_rows = LEAST(GREATEST(processed_rows, $2), row_count), updated_at = $3
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, processedRows, time.Now().UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task progress",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.Int("processed_rows", processedRows))
		return fmt.Errorf("failed to update task progress: %w", MapError(err))
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// Touch implements store.TaskStore.Touch
func (s *PostgresTaskStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE tasks
		SET updated_at = $2
		WHERE id = $1 AND status = $3
	`
	result, err := s.db.ExecContext(ctx, query, id, at.UTC(), string(domain.TaskStatusProcessing))
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to touch task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return fmt.Errorf("failed to touch task: %w", MapError(err))
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: task %s is not processing", store.ErrTransitionRejected, id)
	}
	return nil
}

// MarkCompleted implements store.TaskStore.MarkCompleted
func (s *PostgresTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int, at time.Time) error {
	query := `
		UPDATE tasks
		SET status = $2,
			processed_rows = LEAST(GREATEST(processed_rows, $3), row_count),
			completed_at = $4,
			updated_at = $4
		WHERE id = $1 AND status = $5
	`
	return s.transition(ctx, id, domain.TaskStatusCompleted, query,
		id, string(domain.TaskStatusCompleted), processedRows, at, string(domain.TaskStatusProcessing))
}

// MarkFailed implements store.TaskStore.MarkFailed
func (s *PostgresTaskStore) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	processedRows int,
	errorMessage string,
	at time.Time,
) error {
	if errorMessage == "" {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrTaskErrorMessage)
	}

	query := `
		UPDATE tasks
		SET status = $2,
			processed_rows = LEAST(GREATEST(processed_rows, $3), row_count),
			error_message = $4,
			failed_at = $5,
			updated_at = $5
		WHERE id = $1 AND status = $6
	`
	return s.transition(ctx, id, domain.TaskStatusFailed, query,
		id, string(domain.TaskStatusFailed), processedRows, errorMessage, at, string(domain.TaskStatusProcessing))
}

// Cancel implements store.TaskStore.Cancel
func (s *PostgresTaskStore) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE tasks
		SET status = $2, cancelled_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`
	return s.transition(ctx, id, domain.TaskStatusCancelled, query,
		id, string(domain.TaskStatusCancelled), at,
		string(domain.TaskStatusQueueing), string(domain.TaskStatusProcessing))
}

// transition runs a conditional status update. When nothing matched it tells
// a missing task apart from one that had already moved on.
func (s *PostgresTaskStore) transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	query string,
	args ...any,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("to", string(to)))
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task status: %w", MapError(err))
	}

	log.Debug("task status transition rejected",
		slog.String("task_id", id.String()),
		slog.String("from", current),
		slog.String("to", string(to)))
	return fmt.Errorf("%w: task is %s, cannot move to %s", store.ErrTransitionRejected, current, to)
}
