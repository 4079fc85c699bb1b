package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
)

// ResultStore defines the interface for result persistence.
type ResultStore interface {
	// Create saves a new result.
	// Returns ErrResultExists if the item already has a result and
	// ErrItemNotFound if the item does not exist.
	Create(ctx context.Context, result *domain.Result) error

	// ExistsForItem reports whether a result has been stored for the item.
	ExistsForItem(ctx context.Context, itemID int64) (bool, error)

	// ListByTask returns the results of a task ordered by item ID.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Result, error)

	// WithTx returns a new ResultStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ResultStore
}
