package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Item
var (
	ErrEmptyItemTaskID   = errors.New("item task ID cannot be empty")
	ErrEmptyItemQuestion = errors.New("item question cannot be empty")
)

// Item is one row of work belonging to a task. Items are created in bulk with
// their task and are never modified afterwards. The database assigns ID from a
// sequence, so ascending ID order is the row order of the source sheet.
type Item struct {
	ID                int64     `json:"id"`
	TaskID            uuid.UUID `json:"task_id"`
	Question          string    `json:"question"`
	ExpectedAnswer    string    `json:"expected_answer"`
	ExpectedCitations []string  `json:"expected_citations"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewItem creates an item for the given task. The ID is assigned on insert.
func NewItem(taskID uuid.UUID, question, expectedAnswer string, expectedCitations []string) (*Item, error) {
	if expectedCitations == nil {
		expectedCitations = []string{}
	}

	item := &Item{
		TaskID:            taskID,
		Question:          question,
		ExpectedAnswer:    expectedAnswer,
		ExpectedCitations: expectedCitations,
		CreatedAt:         time.Now().UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the Item has valid data.
func (i *Item) Validate() error {
	if i.TaskID == uuid.Nil {
		return ErrEmptyItemTaskID
	}

	if strings.TrimSpace(i.Question) == "" {
		return ErrEmptyItemQuestion
	}

	return nil
}
