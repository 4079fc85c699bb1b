package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueueing   TaskStatus = "queueing"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskType tags a task with the kind of work it carries. The scheduler polls
// for one type and dispatches through a handler registered for it.
type TaskType string

// TaskTypeRAGEvaluation is a batch of question/answer rows scored against a
// generated answer.
const TaskTypeRAGEvaluation TaskType = "rag_evaluation"

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID   = errors.New("task owner ID cannot be empty")
	ErrEmptyTaskType      = errors.New("task type cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidRowCount    = errors.New("row count cannot be negative")
	ErrInvalidProcessed   = errors.New("processed rows must be between 0 and row count")
	ErrTaskErrorMessage   = errors.New("failed task requires an error message")
	ErrTaskAlreadyStopped = errors.New("task is in a terminal state")
)

// Task is one queued batch of evaluation work. It is created in the QUEUEING
// state by an upstream collaborator together with its items, claimed by a
// poller, and driven to a terminal state by the row processor.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	Filename      string     `json:"filename"`
	SheetName     string     `json:"sheet_name"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	RowCount      int        `json:"row_count"`
	ProcessedRows int        `json:"processed_rows"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}

// NewTask creates a queued task for the given owner and source file.
// Returns an error if validation fails.
func NewTask(ownerID uuid.UUID, taskType TaskType, filename, sheetName string, rowCount int) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Filename:  filename,
		SheetName: sheetName,
		Type:      taskType,
		Status:    TaskStatusQueueing,
		RowCount:  rowCount,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}

	if strings.TrimSpace(string(t.Type)) == "" {
		return ErrEmptyTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.RowCount < 0 {
		return ErrInvalidRowCount
	}

	if t.ProcessedRows < 0 || t.ProcessedRows > t.RowCount {
		return ErrInvalidProcessed
	}

	if t.Status == TaskStatusFailed && t.ErrorMessage == "" {
		return ErrTaskErrorMessage
	}

	return nil
}

// Progress returns the completion percentage derived from processed rows.
// A task without rows reports 0.
func (t *Task) Progress() int {
	return ProgressPercent(t.ProcessedRows, t.RowCount)
}

// IsTerminal reports whether the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Transition moves the task to the given status and stamps the matching
// timestamp. Only edges of the task state machine are accepted.
func (t *Task) Transition(to TaskStatus, at time.Time) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyStopped, t.Status)
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	at = at.UTC()
	switch to {
	case TaskStatusProcessing:
		t.StartedAt = &at
	case TaskStatusCompleted:
		t.CompletedAt = &at
	case TaskStatusCancelled:
		t.CancelledAt = &at
	case TaskStatusFailed:
		t.FailedAt = &at
	}

	t.Status = to
	t.UpdatedAt = at
	return nil
}

// ProgressPercent computes round(processed/total*100), clamped to 0 when total is 0.
func ProgressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// IsTerminal reports whether no transition leaves this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCancelled, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the task state machine.
//
//	queueing   -> processing | cancelled
//	processing -> completed | cancelled | failed
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueueing:
		return to == TaskStatusProcessing || to == TaskStatusCancelled
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusCancelled || to == TaskStatusFailed
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueueing, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusCancelled, TaskStatusFailed:
		return true
	default:
		return false
	}
}
