package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/retry"
)

// DefaultCallTimeout bounds a single attempt of a service call.
const DefaultCallTimeout = 60 * time.Second

// Gateway evaluates items through a ServiceClient with per-call retries.
type Gateway struct {
	client      ServiceClient
	policy      retry.Policy
	callTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway builds a Gateway. A policy without a Retryable predicate retries
// only transient service errors. A zero callTimeout uses DefaultCallTimeout.
func NewGateway(
	client ServiceClient,
	policy retry.Policy,
	callTimeout time.Duration,
	logger *slog.Logger,
	opts ...Option,
) (*Gateway, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if callTimeout < 0 {
		return nil, fmt.Errorf("%w: call timeout cannot be negative", ErrInvalidConfig)
	}
	if callTimeout == 0 {
		callTimeout = DefaultCallTimeout
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		client:      client,
		policy:      policy,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "evaluation_gateway")),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type stepStats struct {
	attempts int
	duration time.Duration
}

// Evaluate generates an answer for the item and scores it against the
// expected answer and citations. Any failing step returns a *StepError.
func (g *Gateway) Evaluate(ctx context.Context, item *domain.Item) (*domain.Result, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: nil item", domain.ErrValidation)
	}

	log := logger.FromContextOrDefault(ctx, g.logger).With(slog.Int64("item_id", item.ID))
	start := g.now()
	stats := make(map[Step]stepStats, 3)

	var answer *Answer
	st, err := g.call(ctx, log, StepGenerateAnswer, func(ctx context.Context) error {
		a, err := g.client.GenerateAnswer(ctx, item.Question)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: empty answer", ErrInvalidResponse)
		}
		answer = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats[StepGenerateAnswer] = st

	var answerScore float64
	st, err = g.call(ctx, log, StepScoreAnswer, func(ctx context.Context) error {
		s, err := g.client.ScoreTextSimilarity(ctx, answer.Text, item.ExpectedAnswer)
		if err != nil {
			return err
		}
		if !domain.ValidScore(s) {
			return fmt.Errorf("%w: answer similarity %v outside [0, 1]", ErrInvalidResponse, s)
		}
		answerScore = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats[StepScoreAnswer] = st

	citations := answer.Citations
	if citations == nil {
		citations = []string{}
	}
	expected := item.ExpectedCitations
	if expected == nil {
		expected = []string{}
	}

	var citationScore float64
	st, err = g.call(ctx, log, StepScoreCitations, func(ctx context.Context) error {
		s, err := g.client.ScoreListSimilarity(ctx, citations, expected)
		if err != nil {
			return err
		}
		if !domain.ValidScore(s) {
			return fmt.Errorf("%w: citation similarity %v outside [0, 1]", ErrInvalidResponse, s)
		}
		citationScore = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats[StepScoreCitations] = st

	end := g.now()
	total := end.Sub(start)

	return &domain.Result{
		ID:                 uuid.New(),
		ItemID:             item.ID,
		TaskID:             item.TaskID,
		Answer:             answer.Text,
		Citations:          citations,
		AnswerSimilarity:   answerScore,
		CitationSimilarity: citationScore,
		Duration:           total,
		Metadata:           g.metadata(stats, total),
		CreatedAt:          end.UTC(),
	}, nil
}

// call runs one step under the retry policy. Each attempt gets its own
// timeout; an attempt that hits it counts as a transient failure.
func (g *Gateway) call(ctx context.Context, log *slog.Logger, step Step, fn func(context.Context) error) (stepStats, error) {
	start := g.now()

	attempts, err := retry.Do(ctx, g.policy, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsTransient(err) {
			err = fmt.Errorf("%w: timed out after %s: %w", ErrTransientService, g.callTimeout, err)
		}

		if attempt < g.policy.MaxAttempts && g.policy.Retryable(err) {
			log.Warn("service call failed, retrying",
				slog.String("step", string(step)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	})

	stats := stepStats{attempts: attempts, duration: g.now().Sub(start)}
	if err != nil {
		log.Error("service call failed",
			slog.String("step", string(step)),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return stats, &StepError{Step: step, Attempts: attempts, Err: err}
	}
	return stats, nil
}

func (g *Gateway) metadata(stats map[Step]stepStats, total time.Duration) map[string]any {
	steps := make(map[string]any, len(stats))
	for step, st := range stats {
		steps[string(step)] = map[string]any{
			"attempts":    st.attempts,
			"duration_ms": st.duration.Milliseconds(),
		}
	}

	md := map[string]any{
		"steps":             steps,
		"total_duration_ms": total.Milliseconds(),
	}
	if d, ok := g.client.(Describer); ok {
		for k, v := range d.Describe() {
			md[k] = v
		}
	}
	return md
}
