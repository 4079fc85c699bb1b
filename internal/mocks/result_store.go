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

// ResultStore is an in-memory store.ResultStore keyed by item ID.
type ResultStore struct {
	CreateFn        func(ctx context.Context, result *domain.Result) error
	ExistsForItemFn func(ctx context.Context, itemID int64) (bool, error)
	ListByTaskFn    func(ctx context.Context, taskID uuid.UUID) ([]*domain.Result, error)

	// AfterCreate, if set, runs after a result has been stored.
	AfterCreate func(result *domain.Result)

	mu      sync.Mutex
	results map[int64]*domain.Result
	creates int
}

var _ store.ResultStore = (*ResultStore)(nil)

// NewResultStore returns an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[int64]*domain.Result)}
}

// Put stores a result without validation, as if written by an earlier run.
func (s *ResultStore) Put(result *domain.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *result
	s.results[c.ItemID] = &c
}

// Count returns the number of stored results.
func (s *ResultStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Creates returns the number of successful Create calls.
func (s *ResultStore) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Create implements store.ResultStore.
func (s *ResultStore) Create(ctx context.Context, result *domain.Result) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, result)
	}
	if err := result.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.results[result.ItemID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: item %d", store.ErrResultExists, result.ItemID)
	}
	c := *result
	s.results[c.ItemID] = &c
	s.creates++
	s.mu.Unlock()

	if s.AfterCreate != nil {
		s.AfterCreate(result)
	}
	return nil
}

// ExistsForItem implements store.ResultStore.
func (s *ResultStore) ExistsForItem(ctx context.Context, itemID int64) (bool, error) {
	if s.ExistsForItemFn != nil {
		return s.ExistsForItemFn(ctx, itemID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[itemID]
	return ok, nil
}

// ListByTask implements store.ResultStore.
func (s *ResultStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Result, error) {
	if s.ListByTaskFn != nil {
		return s.ListByTaskFn(ctx, taskID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Result, 0)
	for _, r := range s.results {
		if r.TaskID == taskID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// WithTx implements store.ResultStore.
func (s *ResultStore) WithTx(*sql.Tx) store.ResultStore {
	return s
}
