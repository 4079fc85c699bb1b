package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/phrazzld/ragbench/internal/evaluation"
	"google.golang.org/genai"
)

// ErrEmptyQuestion is returned when asked to answer an empty question.
var ErrEmptyQuestion = fmt.Errorf("%w: question cannot be empty", evaluation.ErrPermanentService)

// transientStatus lists HTTP status codes worth retrying.
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// classify wraps err in the evaluation error taxonomy. Cancellation of the
// caller's context is passed through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", evaluation.ErrTransientService, op, err)
	}

	if code, ok := apiErrorCode(err); ok {
		if transientStatus[code] {
			return fmt.Errorf("%w: %s: %w", evaluation.ErrTransientService, op, err)
		}
		return fmt.Errorf("%w: %s: %w", evaluation.ErrPermanentService, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", evaluation.ErrTransientService, op, err)
	}

	return fmt.Errorf("%w: %s: %w", evaluation.ErrPermanentService, op, err)
}

// apiErrorCode finds a genai.APIError in the chain. The switch is on any so
// that both value and pointer forms match.
func apiErrorCode(err error) (int, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := any(e).(type) {
		case genai.APIError:
			return v.Code, true
		case *genai.APIError:
			if v != nil {
				return v.Code, true
			}
		}
	}
	return 0, false
}
