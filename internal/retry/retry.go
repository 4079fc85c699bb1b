// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// ErrInvalidPolicy is returned by Do for a policy that cannot run.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy describes how often and how fast an operation is retried. The delay
// before retry n (1-based) is BaseDelay * Multiplier^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// Retryable decides whether a failed attempt may be repeated. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// DefaultPolicy returns three attempts with delays of 1s and 2s between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Validate reports whether the policy can be used.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: base delay cannot be negative", ErrInvalidPolicy)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1, got %v", ErrInvalidPolicy, p.Multiplier)
	}
	return nil
}

// Delays returns the waits between consecutive attempts.
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	b := p.backoff()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}

func (p Policy) backoff() goretry.Backoff {
	next := float64(p.BaseDelay)
	exp := goretry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(next)
		next *= p.Multiplier
		return d, false
	})
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), exp)
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. It reports how many attempts were made. The
// returned error is the last error from fn, or ctx.Err() if the context ended
// while waiting between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	attempts := 0
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx, attempts)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || p.Retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}
