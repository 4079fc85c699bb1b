package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
)

// ItemStore defines the interface for item persistence.
type ItemStore interface {
	// CreateBatch inserts the items in slice order and sets their IDs.
	// Returns ErrTaskNotFound if the owning task does not exist.
	CreateBatch(ctx context.Context, items []*domain.Item) error

	// ListByTask returns all items of a task ordered by ID ascending.
	// Returns an empty slice if the task has no items.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error)

	// WithTx returns a new ItemStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ItemStore
}
