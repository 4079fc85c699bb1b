package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskEvent(t *testing.T) {
	task, err := domain.NewTask(uuid.New(), domain.TaskTypeRAGEvaluation, "golden.xlsx", "Sheet1", 4)
	require.NoError(t, err)
	task.Status = domain.TaskStatusProcessing
	task.ProcessedRows = 1

	event := NewTaskEvent(TaskProgress, task)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TaskProgress, event.Type)
	assert.Equal(t, task.ID, event.TaskID)
	assert.Equal(t, domain.TaskTypeRAGEvaluation, event.TaskType)
	assert.Equal(t, domain.TaskStatusProcessing, event.Status)
	assert.Equal(t, 1, event.ProcessedRows)
	assert.Equal(t, 4, event.RowCount)
	assert.Equal(t, 25, event.Progress)
	assert.Empty(t, event.Error)
	assert.WithinDuration(t, time.Now(), event.OccurredAt, 2*time.Second)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *TaskEvent
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestHandlerFunc(t *testing.T) {
	var got *TaskEvent
	h := HandlerFunc(func(_ context.Context, e *TaskEvent) error {
		got = e
		return errors.New("boom")
	})

	event := &TaskEvent{Type: TaskCompleted}
	assert.EqualError(t, h.HandleEvent(context.Background(), event), "boom")
	assert.Same(t, event, got)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.EmitEvent(context.Background(), &TaskEvent{}))
}
