package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

// PostgresResultStore implements the store.ResultStore interface.
type PostgresResultStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresResultStore creates a new PostgreSQL implementation of the ResultStore interface.
func NewPostgresResultStore(db store.DBTX, logger *slog.Logger) *PostgresResultStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresResultStore{
		db:     db,
		logger: logger.With(slog.String("component", "result_store")),
	}
}

var _ store.ResultStore = (*PostgresResultStore)(nil)

// WithTx implements store.ResultStore.WithTx
func (s *PostgresResultStore) WithTx(tx *sql.Tx) store.ResultStore {
	return &PostgresResultStore{db: tx, logger: s.logger}
}

// Create implements store.ResultStore.Create
func (s *PostgresResultStore) Create(ctx context.Context, result *domain.Result) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := result.Validate(); err != nil {
		log.Warn("result validation failed during create",
			slog.String("error", err.Error()),
			slog.Int64("item_id", result.ItemID))
		return err
	}

	citations := result.Citations
	if citations == nil {
		citations = []string{}
	}
	encodedCitations, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("failed to encode citations: %w", err)
	}

	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO results (id, item_id, task_id, answer, citations, answer_similarity,
			citation_similarity, duration_ms, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		result.ItemID,
		result.TaskID,
		result.Answer,
		string(encodedCitations),
		result.AnswerSimilarity,
		result.CitationSimilarity,
		result.Duration.Milliseconds(),
		string(encodedMetadata),
		result.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("result already stored for item", slog.Int64("item_id", result.ItemID))
			return fmt.Errorf("%w: item %d", store.ErrResultExists, result.ItemID)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: id %d", store.ErrItemNotFound, result.ItemID)
		}
		log.Error("failed to create result",
			slog.String("error", err.Error()),
			slog.Int64("item_id", result.ItemID))
		return fmt.Errorf("failed to create result: %w", MapError(err))
	}

	return nil
}

// ExistsForItem implements store.ResultStore.ExistsForItem
func (s *PostgresResultStore) ExistsForItem(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM results WHERE item_id = $1)`, itemID).Scan(&exists)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to check result existence",
			slog.String("error", err.Error()),
			slog.Int64("item_id", itemID))
		return false, fmt.Errorf("failed to check result existence: %w", MapError(err))
	}
	return exists, nil
}

// ListByTask implements store.ResultStore.ListByTask
func (s *PostgresResultStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Result, error) {
	query := `
		SELECT id, item_id, task_id, answer, citations, answer_similarity,
			citation_similarity, duration_ms, metadata, created_at
		FROM results
		WHERE task_id = $1
		ORDER BY item_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]*domain.Result, 0)
	for rows.Next() {
		var (
			r                   domain.Result
			citations, metadata []byte
			durationMs          int64
		)
		if err := rows.Scan(
			&r.ID,
			&r.ItemID,
			&r.TaskID,
			&r.Answer,
			&citations,
			&r.AnswerSimilarity,
			&r.CitationSimilarity,
			&durationMs,
			&metadata,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if err := decodeStrings(citations, &r.Citations); err != nil {
			return nil, fmt.Errorf("failed to decode citations of item %d: %w", r.ItemID, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of item %d: %w", r.ItemID, err)
			}
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return results, nil
}
