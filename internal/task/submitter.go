package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/store"
)

// Row is one parsed spreadsheet row.
type Row struct {
	Question          string   `json:"question"           validate:"required"`
	ExpectedAnswer    string   `json:"expected_answer"`
	ExpectedCitations []string `json:"expected_citations" validate:"omitempty,dive,required"`
}

// NewTask is a batch of rows to queue as one task.
type NewTask struct {
	OwnerID   uuid.UUID       `json:"owner_id"   validate:"required"`
	Filename  string          `json:"filename"   validate:"required"`
	SheetName string          `json:"sheet_name"`
	Type      domain.TaskType `json:"type"       validate:"required"`
	Rows      []Row           `json:"rows"       validate:"required,min=1,dive"`
}

// Submitter queues new tasks together with their items.
type Submitter struct {
	db       store.TxBeginner
	tasks    store.TaskStore
	items    store.ItemStore
	validate *validator.Validate
	logger   *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(db store.TxBeginner, tasks store.TaskStore, items store.ItemStore, log *slog.Logger) (*Submitter, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if tasks == nil || items == nil {
		return nil, ErrNilStore
	}
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{
		db:       db,
		tasks:    tasks,
		items:    items,
		validate: validator.New(),
		logger:   log.With(slog.String("component", "submitter")),
	}, nil
}

// Submit validates in and stores a queued task with one item per row, in row
// order, in a single transaction.
func (s *Submitter) Submit(ctx context.Context, in NewTask) (*domain.Task, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	task, err := domain.NewTask(in.OwnerID, in.Type, in.Filename, in.SheetName, len(in.Rows))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	items := make([]*domain.Item, 0, len(in.Rows))
	for i, row := range in.Rows {
		item, err := domain.NewItem(task.ID, row.Question, row.ExpectedAnswer, row.ExpectedCitations)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidRequest, i+1, err)
		}
		items = append(items, item)
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	ctx = logger.WithLogger(ctx, log)

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.tasks.WithTx(tx).Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if err := s.items.WithTx(tx).CreateBatch(ctx, items); err != nil {
			return fmt.Errorf("failed to create items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "task queued",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)),
		slog.Int("row_count", task.RowCount))
	return task, nil
}
