package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
)

// EventType identifies a task lifecycle event.
type EventType string

// Lifecycle event types.
const (
	TaskClaimed   EventType = "task.claimed"
	TaskProgress  EventType = "task.progress"
	TaskCompleted EventType = "task.completed"
	TaskFailed    EventType = "task.failed"
	TaskCancelled EventType = "task.cancelled"
)

// TaskEvent is a snapshot of a task taken when something happened to it.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type     EventType         `json:"type"`
	TaskID   uuid.UUID         `json:"task_id"`
	TaskType domain.TaskType   `json:"task_type"`
	Status   domain.TaskStatus `json:"status"`

	ProcessedRows int `json:"processed_rows"`
	RowCount      int `json:"row_count"`
	// Progress is the derived completion percentage.
	Progress int `json:"progress"`

	Error string `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent snapshots task into a new event of the given type.
func NewTaskEvent(eventType EventType, task *domain.Task) *TaskEvent {
	return &TaskEvent{
		ID:            uuid.New(),
		Type:          eventType,
		TaskID:        task.ID,
		TaskType:      task.Type,
		Status:        task.Status,
		ProcessedRows: task.ProcessedRows,
		RowCount:      task.RowCount,
		Progress:      task.Progress(),
		Error:         task.ErrorMessage,
		OccurredAt:    time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the pipeline to publish events without knowledge of handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// Discard is an EventEmitter that drops every event.
var Discard EventEmitter = discard{}

type discard struct{}

func (discard) EmitEvent(context.Context, *TaskEvent) error { return nil }
