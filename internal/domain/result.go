package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Result
var (
	ErrEmptyResultID     = errors.New("result ID cannot be empty")
	ErrEmptyResultItemID = errors.New("result item ID cannot be empty")
	ErrEmptyResultTaskID = errors.New("result task ID cannot be empty")
	ErrInvalidScore      = errors.New("similarity score must be within [0, 1]")
	ErrNegativeDuration  = errors.New("processing duration cannot be negative")
)

// Result is the persisted outcome of evaluating one item. At most one result
// exists per item; its presence marks the item as done when a task resumes.
type Result struct {
	ID                 uuid.UUID      `json:"id"`
	ItemID             int64          `json:"item_id"`
	TaskID             uuid.UUID      `json:"task_id"`
	Answer             string         `json:"answer"`
	Citations          []string       `json:"citations"`
	AnswerSimilarity   float64        `json:"answer_similarity"`
	CitationSimilarity float64        `json:"citation_similarity"`
	Duration           time.Duration  `json:"duration"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Validate checks if the Result has valid data.
func (r *Result) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyResultID
	}

	if r.ItemID == 0 {
		return ErrEmptyResultItemID
	}

	if r.TaskID == uuid.Nil {
		return ErrEmptyResultTaskID
	}

	if !ValidScore(r.AnswerSimilarity) || !ValidScore(r.CitationSimilarity) {
		return ErrInvalidScore
	}

	if r.Duration < 0 {
		return ErrNegativeDuration
	}

	return nil
}

// ValidScore reports whether s is a similarity score in [0, 1].
func ValidScore(s float64) bool {
	return !math.IsNaN(s) && s >= 0 && s <= 1
}
