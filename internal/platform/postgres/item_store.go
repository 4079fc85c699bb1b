package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

// PostgresItemStore implements the store.ItemStore interface.
type PostgresItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresItemStore creates a new PostgreSQL implementation of the ItemStore interface.
func NewPostgresItemStore(db store.DBTX, logger *slog.Logger) *PostgresItemStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresItemStore{
		db:     db,
		logger: logger.With(slog.String("component", "item_store")),
	}
}

var _ store.ItemStore = (*PostgresItemStore)(nil)

// WithTx implements store.ItemStore.WithTx
func (s *PostgresItemStore) WithTx(tx *sql.Tx) store.ItemStore {
	return &PostgresItemStore{db: tx, logger: s.logger}
}

// CreateBatch implements store.ItemStore.CreateBatch.
// Rows are inserted one statement at a time so that the sequence hands out
// IDs in slice order.
func (s *PostgresItemStore) CreateBatch(ctx context.Context, items []*domain.Item) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO items (task_id, question, expected_answer, expected_citations, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %w", store.ErrInvalidEntity, i+1, err)
		}

		citations := item.ExpectedCitations
		if citations == nil {
			citations = []string{}
		}
		encoded, err := json.Marshal(citations)
		if err != nil {
			return fmt.Errorf("failed to encode expected citations: %w", err)
		}

		err = s.db.QueryRowContext(ctx, query,
			item.TaskID,
			item.Question,
			item.ExpectedAnswer,
			string(encoded),
			item.CreatedAt,
		).Scan(&item.ID)
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: id %s", store.ErrTaskNotFound, item.TaskID)
		}
		if err != nil {
			log.Error("failed to insert item",
				slog.String("error", err.Error()),
				slog.String("task_id", item.TaskID.String()),
				slog.Int("position", i+1))
			return fmt.Errorf("failed to insert item %d: %w", i+1, MapError(err))
		}
	}

	log.Debug("items created", slog.Int("count", len(items)))
	return nil
}

// ListByTask implements store.ItemStore.ListByTask
func (s *PostgresItemStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, task_id, question, expected_answer, expected_citations, created_at
		FROM items
		WHERE task_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		log.Error("failed to query items",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, fmt.Errorf("failed to query items: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	items := make([]*domain.Item, 0)
	for rows.Next() {
		var (
			item      domain.Item
			citations []byte
		)
		if err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.Question,
			&item.ExpectedAnswer,
			&citations,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if err := decodeStrings(citations, &item.ExpectedCitations); err != nil {
			return nil, fmt.Errorf("failed to decode expected citations of item %d: %w", item.ID, err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// decodeStrings unmarshals a JSONB array, treating NULL as empty.
func decodeStrings(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
