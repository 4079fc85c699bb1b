package evaluation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/evaluation"
	"github.com/phrazzld/ragbench/internal/mocks"
	"github.com/phrazzld/ragbench/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

func newGateway(t *testing.T, client evaluation.ServiceClient) *evaluation.Gateway {
	t.Helper()
	g, err := evaluation.NewGateway(client, testPolicy(), time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return g
}

func testItem() *domain.Item {
	return &domain.Item{
		ID:                42,
		TaskID:            uuid.New(),
		Question:          "What is the capital of France?",
		ExpectedAnswer:    "Paris",
		ExpectedCitations: []string{"geo.pdf"},
	}
}

func TestNewGateway(t *testing.T) {
	_, err := evaluation.NewGateway(nil, testPolicy(), time.Second, nil)
	assert.ErrorIs(t, err, evaluation.ErrNilClient)

	_, err = evaluation.NewGateway(&mocks.MockServiceClient{}, retry.Policy{}, time.Second, nil)
	assert.ErrorIs(t, err, evaluation.ErrInvalidConfig)

	_, err = evaluation.NewGateway(&mocks.MockServiceClient{}, testPolicy(), -time.Second, nil)
	assert.ErrorIs(t, err, evaluation.ErrInvalidConfig)
}

func TestEvaluate_Success(t *testing.T) {
	client := mocks.NewMockServiceClient("Paris", []string{"geo.pdf"}, 0.9)
	item := testItem()

	result, err := newGateway(t, client).Evaluate(context.Background(), item)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.ID)
	assert.Equal(t, item.ID, result.ItemID)
	assert.Equal(t, item.TaskID, result.TaskID)
	assert.Equal(t, "Paris", result.Answer)
	assert.Equal(t, []string{"geo.pdf"}, result.Citations)
	assert.InDelta(t, 0.9, result.AnswerSimilarity, 1e-9)
	assert.InDelta(t, 0.9, result.CitationSimilarity, 1e-9)
	assert.Equal(t, "mock", result.Metadata["answer_model"])
	assert.Contains(t, result.Metadata, "total_duration_ms")

	steps, ok := result.Metadata["steps"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, steps, 3)
	gen := steps[string(evaluation.StepGenerateAnswer)].(map[string]any)
	assert.Equal(t, 1, gen["attempts"])
	assert.NoError(t, result.Validate())
}

func TestEvaluate_DurationsFromClock(t *testing.T) {
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		now := base.Add(time.Duration(ticks) * 100 * time.Millisecond)
		ticks++
		return now
	}

	g, err := evaluation.NewGateway(mocks.NewMockServiceClient("Paris", nil, 0.5), testPolicy(), time.Second,
		nil, evaluation.WithClock(clock))
	require.NoError(t, err)

	result, err := g.Evaluate(context.Background(), testItem())
	require.NoError(t, err)

	// start, two readings per step, end
	assert.Equal(t, 700*time.Millisecond, result.Duration)
	assert.Equal(t, base.Add(700*time.Millisecond), result.CreatedAt)
	assert.Equal(t, int64(700), result.Metadata["total_duration_ms"])

	steps := result.Metadata["steps"].(map[string]any)
	for _, step := range []evaluation.Step{
		evaluation.StepGenerateAnswer, evaluation.StepScoreAnswer, evaluation.StepScoreCitations,
	} {
		st := steps[string(step)].(map[string]any)
		assert.Equal(t, int64(100), st["duration_ms"], step)
	}
}

func TestEvaluate_RetryThenSucceed(t *testing.T) {
	calls := 0
	client := mocks.NewMockServiceClient("Paris", nil, 1)
	client.ScoreTextSimilarityFn = func(context.Context, string, string) (float64, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("%w: 503", evaluation.ErrTransientService)
		}
		return 0.75, nil
	}

	result, err := newGateway(t, client).Evaluate(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.InDelta(t, 0.75, result.AnswerSimilarity, 1e-9)
	assert.Equal(t, []string{}, result.Citations)

	steps := result.Metadata["steps"].(map[string]any)
	assert.Equal(t, 3, steps[string(evaluation.StepScoreAnswer)].(map[string]any)["attempts"])
}

func TestEvaluate_Failures(t *testing.T) {
	tests := []struct {
		name         string
		configure    func(*mocks.MockServiceClient, *int)
		wantStep     evaluation.Step
		wantAttempts int
		wantErr      error
	}{
		{
			name: "transient exhausted",
			configure: func(c *mocks.MockServiceClient, calls *int) {
				c.GenerateAnswerFn = func(context.Context, string) (*evaluation.Answer, error) {
					*calls++
					return nil, fmt.Errorf("%w: 429", evaluation.ErrTransientService)
				}
			},
			wantStep:     evaluation.StepGenerateAnswer,
			wantAttempts: 3,
			wantErr:      evaluation.ErrTransientService,
		},
		{
			name: "permanent fails immediately",
			configure: func(c *mocks.MockServiceClient, calls *int) {
				c.ScoreListSimilarityFn = func(context.Context, []string, []string) (float64, error) {
					*calls++
					return 0, fmt.Errorf("%w: 400", evaluation.ErrPermanentService)
				}
			},
			wantStep:     evaluation.StepScoreCitations,
			wantAttempts: 1,
			wantErr:      evaluation.ErrPermanentService,
		},
		{
			name: "unclassified error is not retried",
			configure: func(c *mocks.MockServiceClient, calls *int) {
				c.ScoreTextSimilarityFn = func(context.Context, string, string) (float64, error) {
					*calls++
					return 0, errors.New("boom")
				}
			},
			wantStep:     evaluation.StepScoreAnswer,
			wantAttempts: 1,
		},
		{
			name: "score out of range",
			configure: func(c *mocks.MockServiceClient, calls *int) {
				c.ScoreTextSimilarityFn = func(context.Context, string, string) (float64, error) {
					*calls++
					return 1.2, nil
				}
			},
			wantStep:     evaluation.StepScoreAnswer,
			wantAttempts: 1,
			wantErr:      evaluation.ErrInvalidResponse,
		},
		{
			name: "NaN score",
			configure: func(c *mocks.MockServiceClient, calls *int) {
				c.ScoreListSimilarityFn = func(context.Context, []string, []string) (float64, error) {
					*calls++
					return math.NaN(), nil
				}
			},
			wantStep:     evaluation.StepScoreCitations,
			wantAttempts: 1,
			wantErr:      evaluation.ErrInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := mocks.NewMockServiceClient("Paris", nil, 0.5)
			calls := 0
			tc.configure(client, &calls)

			result, err := newGateway(t, client).Evaluate(context.Background(), testItem())
			require.Error(t, err)
			assert.Nil(t, result)

			var stepErr *evaluation.StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tc.wantStep, stepErr.Step)
			assert.Equal(t, tc.wantAttempts, stepErr.Attempts)
			assert.Equal(t, tc.wantAttempts, calls)
			assert.Contains(t, err.Error(), string(tc.wantStep))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestEvaluate_PerCallTimeoutIsTransient(t *testing.T) {
	client := mocks.NewMockServiceClient("Paris", nil, 0.5)
	calls := 0
	client.GenerateAnswerFn = func(ctx context.Context, q string) (*evaluation.Answer, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &evaluation.Answer{Text: "Paris"}, nil
	}

	g, err := evaluation.NewGateway(client, testPolicy(), 20*time.Millisecond, nil)
	require.NoError(t, err)

	result, err := g.Evaluate(context.Background(), testItem())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Paris", result.Answer)
}

func TestEvaluate_ParentCancelled(t *testing.T) {
	client := mocks.NewMockServiceClient("Paris", nil, 0.5)
	ctx, cancel := context.WithCancel(context.Background())
	client.GenerateAnswerFn = func(context.Context, string) (*evaluation.Answer, error) {
		cancel()
		return nil, fmt.Errorf("%w: 503", evaluation.ErrTransientService)
	}

	_, err := newGateway(t, client).Evaluate(ctx, testItem())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.GenerateAnswerCalls())
}

func TestStepErrorMessage(t *testing.T) {
	err := &evaluation.StepError{Step: evaluation.StepScoreAnswer, Attempts: 1, Err: errors.New("x")}
	assert.Equal(t, "score_answer failed after 1 attempt: x", err.Error())
	err.Attempts = 3
	assert.Equal(t, "score_answer failed after 3 attempts: x", err.Error())
}
