package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/store"
)

// ItemStore is an in-memory store.ItemStore that assigns IDs from a counter.
type ItemStore struct {
	CreateBatchFn func(ctx context.Context, items []*domain.Item) error
	ListByTaskFn  func(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error)

	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.Item
}

var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore returns an empty in-memory item store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[int64]*domain.Item)}
}

// Add creates items for the task with the given questions and returns them.
// Expected answers are "A" followed by the 1-based position.
func (s *ItemStore) Add(taskID uuid.UUID, questions ...string) []*domain.Item {
	items := make([]*domain.Item, 0, len(questions))
	for i, q := range questions {
		items = append(items, &domain.Item{
			TaskID:            taskID,
			Question:          q,
			ExpectedAnswer:    fmt.Sprintf("A%d", i+1),
			ExpectedCitations: []string{},
		})
	}
	_ = s.CreateBatch(context.Background(), items)
	return items
}

// CreateBatch implements store.ItemStore.
func (s *ItemStore) CreateBatch(ctx context.Context, items []*domain.Item) error {
	if s.CreateBatchFn != nil {
		return s.CreateBatchFn(ctx, items)
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %w", store.ErrInvalidEntity, i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.nextID++
		item.ID = s.nextID
		c := *item
		s.items[c.ID] = &c
	}
	return nil
}

// ListByTask implements store.ItemStore.
func (s *ItemStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error) {
	if s.ListByTaskFn != nil {
		return s.ListByTaskFn(ctx, taskID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Item, 0)
	for _, item := range s.items {
		if item.TaskID == taskID {
			c := *item
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WithTx implements store.ItemStore.
func (s *ItemStore) WithTx(*sql.Tx) store.ItemStore {
	return s
}
