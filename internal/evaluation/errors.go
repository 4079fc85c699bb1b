package evaluation

import (
	"errors"
	"fmt"
)

// Error taxonomy for service calls. Only ErrTransientService is retried.
var (
	// ErrTransientService marks a failure that may succeed on retry: rate
	// limits, timeouts, unavailable upstreams.
	ErrTransientService = errors.New("transient service error")

	// ErrPermanentService marks a failure that will not change on retry.
	ErrPermanentService = errors.New("permanent service error")

	// ErrInvalidResponse is returned when a service answer cannot be used,
	// such as a score outside [0, 1] or malformed JSON. It is permanent.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response", ErrPermanentService)

	// ErrContentBlocked is returned when the model refuses the prompt.
	ErrContentBlocked = fmt.Errorf("%w: content blocked by safety filters", ErrPermanentService)

	// ErrInvalidConfig is returned when the gateway is constructed with
	// unusable settings.
	ErrInvalidConfig = errors.New("invalid evaluation configuration")

	// ErrNilClient is returned when no service client is supplied.
	ErrNilClient = errors.New("service client cannot be nil")
)

// Step names one of the three service calls of an evaluation.
type Step string

const (
	StepGenerateAnswer Step = "generate_answer"
	StepScoreAnswer    Step = "score_answer"
	StepScoreCitations Step = "score_citations"
)

// StepError reports which call of an evaluation failed and after how many
// attempts. It wraps the last error returned by that call.
type StepError struct {
	Step     Step
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("%s failed after %d %s: %v", e.Step, e.Attempts, noun, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService)
}
