package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/evaluation"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/mocks"
	"github.com/phrazzld/ragbench/internal/retry"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fixture wires a processor to in-memory stores and a scripted client that
// answers "A" with no citations and scores everything 0.9.
type fixture struct {
	tasks     *mocks.TaskStore
	items     *mocks.ItemStore
	results   *mocks.ResultStore
	client    *mocks.MockServiceClient
	recorder  *events.Recorder
	emitter   *events.InMemoryEventEmitter
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tasks:    mocks.NewTaskStore(),
		items:    mocks.NewItemStore(),
		results:  mocks.NewResultStore(),
		client:   mocks.NewMockServiceClient("A", nil, 0.9),
		recorder: &events.Recorder{},
		emitter:  events.NewInMemoryEventEmitter(setupTestLogger()),
	}
	f.emitter.RegisterHandler(f.recorder)

	f.processor = f.newProcessor(t)
	return f
}

// newProcessor builds another processor over the fixture's stores and client.
func (f *fixture) newProcessor(t *testing.T, opts ...ProcessorOption) *Processor {
	t.Helper()
	gateway, err := evaluation.NewGateway(f.client,
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
		time.Second, setupTestLogger())
	require.NoError(t, err)

	p, err := NewProcessor(f.tasks, f.items, f.results, gateway, f.emitter, setupTestLogger(), opts...)
	require.NoError(t, err)
	return p
}

// queuedTask stores a queued task with one item per question.
func (f *fixture) queuedTask(t *testing.T, questions ...string) (*domain.Task, []*domain.Item) {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), domain.TaskTypeRAGEvaluation, "golden.xlsx", "Sheet1", len(questions))
	require.NoError(t, err)
	f.tasks.Put(task)
	return task, f.items.Add(task.ID, questions...)
}

// processingTask stores a claimed task with one item per question.
func (f *fixture) processingTask(t *testing.T, questions ...string) (*domain.Task, []*domain.Item) {
	t.Helper()
	task, items := f.queuedTask(t, questions...)
	ok, err := f.tasks.Claim(context.Background(), task.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	return f.tasks.Get(task.ID), items
}

func questions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Q%d", i+1)
	}
	return out
}

func storedResult(item *domain.Item) *domain.Result {
	return &domain.Result{
		ID:                 uuid.New(),
		ItemID:             item.ID,
		TaskID:             item.TaskID,
		Answer:             "earlier",
		Citations:          []string{},
		AnswerSimilarity:   0.5,
		CitationSimilarity: 0.5,
		CreatedAt:          time.Now().UTC(),
	}
}

// transientErr is what a rate-limited service call returns.
func transientErr() error {
	return fmt.Errorf("%w: rate limited", evaluation.ErrTransientService)
}
