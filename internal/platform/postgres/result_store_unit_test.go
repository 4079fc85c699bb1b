package postgres

import (
	"context"
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

func TestPostgresResultStore_Create(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	newResult := func() *domain.Result {
		return &domain.Result{
			ID:                 uuid.New(),
			ItemID:             11,
			TaskID:             uuid.New(),
			Answer:             "Paris",
			Citations:          []string{"doc-1"},
			AnswerSimilarity:   0.93,
			CitationSimilarity: 1,
			Duration:           1500 * time.Millisecond,
			Metadata:           map[string]any{"answer_model": "m"},
			CreatedAt:          time.Now().UTC(),
		}
	}

	t.Run("inserts json columns", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresResultStore(db, log)

		r := newResult()
		mock.ExpectExec(`INSERT INTO results`).
			WithArgs(r.ID, int64(11), r.TaskID, "Paris", `["doc-1"]`, 0.93, 1.0, int64(1500),
				`{"answer_model":"m"}`, r.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(ctx, r))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second result for item", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresResultStore(db, log)

		mock.ExpectExec(`INSERT INTO results`).WillReturnError(newPgError(uniqueViolationCode))

		err = s.Create(ctx, newResult())
		assert.ErrorIs(t, err, store.ErrResultExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("unknown item", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresResultStore(db, log)

		mock.ExpectExec(`INSERT INTO results`).WillReturnError(newPgError(foreignKeyViolationCode))

		err = s.Create(ctx, newResult())
		assert.ErrorIs(t, err, store.ErrItemNotFound)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("invalid score is rejected before the database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresResultStore(db, log)

		r := newResult()
		r.AnswerSimilarity = 1.5
		assert.ErrorIs(t, s.Create(ctx, r), domain.ErrInvalidScore)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresItemStore_ListByTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgresItemStore(db, nil)

	taskID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`ORDER BY id ASC`).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "task_id", "question", "expected_answer", "expected_citations", "created_at",
		}).
			AddRow(int64(1), taskID.String(), "Q1", "A1", []byte(`["c1","c2"]`), now).
			AddRow(int64(2), taskID.String(), "Q2", "A2", nil, now))

	items, err := s.ListByTask(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, []string{"c1", "c2"}, items[0].ExpectedCitations)
	assert.Equal(t, []string{}, items[1].ExpectedCitations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresItemStore_CreateBatch(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()

	newItems := func() []*domain.Item {
		a, err := domain.NewItem(taskID, "Q1", "A1", []string{"c1"})
		require.NoError(t, err)
		b, err := domain.NewItem(taskID, "Q2", "A2", nil)
		require.NoError(t, err)
		return []*domain.Item{a, b}
	}

	t.Run("assigns ids in order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresItemStore(db, nil)

		items := newItems()
		mock.ExpectQuery(`INSERT INTO items`).
			WithArgs(taskID, "Q1", "A1", `["c1"]`, items[0].CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectQuery(`INSERT INTO items`).
			WithArgs(taskID, "Q2", "A2", `[]`, items[1].CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

		require.NoError(t, s.CreateBatch(ctx, items))
		assert.Equal(t, int64(7), items[0].ID)
		assert.Equal(t, int64(8), items[1].ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown task", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewPostgresItemStore(db, nil)

		mock.ExpectQuery(`INSERT INTO items`).WillReturnError(newPgError(foreignKeyViolationCode))

		err = s.CreateBatch(ctx, newItems())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
