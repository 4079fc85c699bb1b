package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTaskStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresTaskStore(db, log), mock
}

var taskRowColumns = []string{
	"id", "owner_id", "filename", "sheet_name", "type", "status", "row_count",
	"processed_rows", "error_message", "created_at", "updated_at",
	"started_at", "completed_at", "cancelled_at", "failed_at",
}

func TestNewPostgresTaskStore_NilDB(t *testing.T) {
	assert.Panics(t, func() { NewPostgresTaskStore(nil, nil) })
}

func TestPostgresTaskStore_FindOldestQueued(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the row", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		id, owner := uuid.New(), uuid.New()
		created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectQuery(`ORDER BY created_at ASC, id ASC`).
			WithArgs("rag_evaluation", "queueing").
			WillReturnRows(sqlmock.NewRows(taskRowColumns).AddRow(
				id.String(), owner.String(), "golden.xlsx", "Sheet1", "rag_evaluation", "queueing", 4,
				0, "", created, created, nil, nil, nil, nil,
			))

		task, err := s.FindOldestQueued(ctx, domain.TaskTypeRAGEvaluation)
		require.NoError(t, err)
		assert.Equal(t, id, task.ID)
		assert.Equal(t, domain.TaskStatusQueueing, task.Status)
		assert.Equal(t, 4, task.RowCount)
		assert.Nil(t, task.StartedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none queued", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectQuery(`FROM tasks`).WillReturnError(sql.ErrNoRows)

		_, err := s.FindOldestQueued(ctx, domain.TaskTypeRAGEvaluation)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_Claim(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	at := time.Now().UTC()

	t.Run("won", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`UPDATE tasks\s+SET status = \$2, started_at = \$3, updated_at = \$3\s+WHERE id = \$1 AND status = \$4`).
			WithArgs(id, "processing", at, "queueing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.Claim(ctx, id, at)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.Claim(ctx, id, at)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresTaskStore_UpdateProgress(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("monotonic write", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`LEAST\(GREATEST\(processed_rows, \$2\), row_count\)`).
			WithArgs(id, 3, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateProgress(ctx, id, 3))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing task", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, s.UpdateProgress(ctx, id, 1), store.ErrTaskNotFound)
	})

	t.Run("negative", func(t *testing.T) {
		s, _ := newMockTaskStore(t)
		assert.ErrorIs(t, s.UpdateProgress(ctx, id, -1), store.ErrInvalidEntity)
	})
}

func TestPostgresTaskStore_Touch(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("processing", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`SET updated_at = \$2\s+WHERE id = \$1 AND status = \$3`).
			WithArgs(id, at, "processing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Touch(ctx, id, at))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not processing", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, s.Touch(ctx, id, at), store.ErrTransitionRejected)
	})
}

func TestPostgresTaskStore_Transitions(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	at := time.Now().UTC()

	t.Run("completed", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`WHERE id = \$1 AND status = \$5`).
			WithArgs(id, "completed", 2, at, "processing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.MarkCompleted(ctx, id, 2, at))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed rejected after cancel", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`UPDATE tasks`).
			WithArgs(id, "failed", 1, "item 2 (id=9) failed: boom", at, "processing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM tasks WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

		err := s.MarkFailed(ctx, id, 1, "item 2 (id=9) failed: boom", at)
		assert.ErrorIs(t, err, store.ErrTransitionRejected)
		assert.Contains(t, err.Error(), "cancelled")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed needs message", func(t *testing.T) {
		s, _ := newMockTaskStore(t)
		assert.ErrorIs(t, s.MarkFailed(ctx, id, 0, "", at), store.ErrInvalidEntity)
	})

	t.Run("cancel missing task", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		mock.ExpectExec(`status IN \(\$4, \$5\)`).
			WithArgs(id, "cancelled", at, "queueing", "processing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM tasks`).WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, s.Cancel(ctx, id, at), store.ErrTaskNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTaskStore_ReclaimStale(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockTaskStore(t)
	id, owner := uuid.New(), uuid.New()
	before := time.Now().UTC().Add(-30 * time.Minute)
	started := before.Add(-time.Hour)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("rag_evaluation", "processing", before, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).AddRow(
			id.String(), owner.String(), "golden.xlsx", "Sheet1", "rag_evaluation", "processing", 5,
			2, "", started, time.Now().UTC(), started, nil, nil, nil,
		))

	task, err := s.ReclaimStale(ctx, domain.TaskTypeRAGEvaluation, before)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Equal(t, 2, task.ProcessedRows)
	require.NotNil(t, task.StartedAt)
	assert.True(t, started.Equal(*task.StartedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
