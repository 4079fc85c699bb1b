package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/store"
)

// TaskStore is an in-memory store.TaskStore. Returned tasks are copies.
type TaskStore struct {
	CreateFn           func(ctx context.Context, task *domain.Task) error
	GetByIDFn          func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	FindOldestQueuedFn func(ctx context.Context, taskType domain.TaskType) (*domain.Task, error)
	ClaimFn            func(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	ReclaimStaleFn     func(ctx context.Context, taskType domain.TaskType, staleBefore time.Time) (*domain.Task, error)
	UpdateProgressFn   func(ctx context.Context, id uuid.UUID, processedRows int) error
	TouchFn            func(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCompletedFn    func(ctx context.Context, id uuid.UUID, processedRows int, at time.Time) error
	MarkFailedFn       func(ctx context.Context, id uuid.UUID, processedRows int, msg string, at time.Time) error
	CancelFn           func(ctx context.Context, id uuid.UUID, at time.Time) error

	mu             sync.Mutex
	tasks          map[uuid.UUID]*domain.Task
	progressWrites []int
	touches        int
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore returns an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	return &c
}

// Put stores a copy of task as is, bypassing validation.
func (s *TaskStore) Put(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = copyTask(task)
}

// Get returns a copy of the stored task, or nil.
func (s *TaskStore) Get(id uuid.UUID) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

// ProgressWrites returns every value passed to a successful UpdateProgress.
func (s *TaskStore) ProgressWrites() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progressWrites...)
}

// Touches returns how many successful Touch calls were made.
func (s *TaskStore) Touches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touches
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, task)
	}
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetByID implements store.TaskStore.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	if t := s.Get(id); t != nil {
		return t, nil
	}
	return nil, store.ErrTaskNotFound
}

// FindOldestQueued implements store.TaskStore.
func (s *TaskStore) FindOldestQueued(ctx context.Context, taskType domain.TaskType) (*domain.Task, error) {
	if s.FindOldestQueuedFn != nil {
		return s.FindOldestQueuedFn(ctx, taskType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []*domain.Task
	for _, t := range s.tasks {
		if t.Type == taskType && t.Status == domain.TaskStatusQueueing {
			queued = append(queued, t)
		}
	}
	if len(queued) == 0 {
		return nil, store.ErrTaskNotFound
	}
	sort.Slice(queued, func(i, j int) bool {
		if !queued[i].CreatedAt.Equal(queued[j].CreatedAt) {
			return queued[i].CreatedAt.Before(queued[j].CreatedAt)
		}
		return queued[i].ID.String() < queued[j].ID.String()
	})
	return copyTask(queued[0]), nil
}

// Claim implements store.TaskStore.
func (s *TaskStore) Claim(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	if s.ClaimFn != nil {
		return s.ClaimFn(ctx, id, startedAt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != domain.TaskStatusQueueing {
		return false, nil
	}
	t.Status = domain.TaskStatusProcessing
	at := startedAt
	t.StartedAt = &at
	t.UpdatedAt = startedAt
	return true, nil
}

// ReclaimStale implements store.TaskStore.
func (s *TaskStore) ReclaimStale(ctx context.Context, taskType domain.TaskType, staleBefore time.Time) (*domain.Task, error) {
	if s.ReclaimStaleFn != nil {
		return s.ReclaimStaleFn(ctx, taskType, staleBefore)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Task
	for _, t := range s.tasks {
		if t.Type != taskType || t.Status != domain.TaskStatusProcessing || !t.UpdatedAt.Before(staleBefore) {
			continue
		}
		if oldest == nil || t.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, store.ErrTaskNotFound
	}
	oldest.UpdatedAt = time.Now().UTC()
	return copyTask(oldest), nil
}

// UpdateProgress implements store.TaskStore.
func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int) error {
	if s.UpdateProgressFn != nil {
		return s.UpdateProgressFn(ctx, id, processedRows)
	}
	if processedRows < 0 {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidProcessed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.ProcessedRows = clampProgress(t, processedRows)
	t.UpdatedAt = time.Now().UTC()
	s.progressWrites = append(s.progressWrites, processedRows)
	return nil
}

// Touch implements store.TaskStore.
func (s *TaskStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.TouchFn != nil {
		return s.TouchFn(ctx, id, at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != domain.TaskStatusProcessing {
		return store.ErrTransitionRejected
	}
	t.UpdatedAt = at
	s.touches++
	return nil
}

// clampProgress mirrors LEAST(GREATEST(processed_rows, n), row_count).
func clampProgress(t *domain.Task, n int) int {
	if n < t.ProcessedRows {
		n = t.ProcessedRows
	}
	if n > t.RowCount {
		n = t.RowCount
	}
	return n
}

// MarkCompleted implements store.TaskStore.
func (s *TaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int, at time.Time) error {
	if s.MarkCompletedFn != nil {
		return s.MarkCompletedFn(ctx, id, processedRows, at)
	}
	return s.transition(id, domain.TaskStatusCompleted, func(t *domain.Task) {
		t.ProcessedRows = clampProgress(t, processedRows)
		ts := at
		t.CompletedAt = &ts
		t.UpdatedAt = at
	}, domain.TaskStatusProcessing)
}

// MarkFailed implements store.TaskStore.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, processedRows int, msg string, at time.Time) error {
	if s.MarkFailedFn != nil {
		return s.MarkFailedFn(ctx, id, processedRows, msg, at)
	}
	if msg == "" {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrTaskErrorMessage)
	}
	return s.transition(id, domain.TaskStatusFailed, func(t *domain.Task) {
		t.ProcessedRows = clampProgress(t, processedRows)
		t.ErrorMessage = msg
		ts := at
		t.FailedAt = &ts
		t.UpdatedAt = at
	}, domain.TaskStatusProcessing)
}

// Cancel implements store.TaskStore.
func (s *TaskStore) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.CancelFn != nil {
		return s.CancelFn(ctx, id, at)
	}
	return s.transition(id, domain.TaskStatusCancelled, func(t *domain.Task) {
		ts := at
		t.CancelledAt = &ts
		t.UpdatedAt = at
	}, domain.TaskStatusQueueing, domain.TaskStatusProcessing)
}

func (s *TaskStore) transition(id uuid.UUID, to domain.TaskStatus, apply func(*domain.Task), from ...domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	for _, f := range from {
		if t.Status == f {
			t.Status = to
			apply(t)
			return nil
		}
	}
	return fmt.Errorf("%w: task is %s, cannot move to %s", store.ErrTransitionRejected, t.Status, to)
}

// WithTx implements store.TaskStore. The in-memory store has no transactions.
func (s *TaskStore) WithTx(*sql.Tx) store.TaskStore {
	return s
}
