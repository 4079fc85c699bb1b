package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimer_Claim(t *testing.T) {
	t.Parallel()

	t.Run("claims queued task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c, err := NewClaimer(f.tasks, f.emitter, setupTestLogger())
		require.NoError(t, err)

		task, _ := f.queuedTask(t, "Q1")
		ok, err := c.Claim(context.Background(), task)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		require.NotNil(t, task.StartedAt)
		assert.Equal(t, domain.TaskStatusProcessing, f.tasks.Get(task.ID).Status)
		assert.Equal(t, []events.EventType{events.TaskClaimed}, f.recorder.Types())
	})

	t.Run("cancelled task is not claimed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c, err := NewClaimer(f.tasks, f.emitter, setupTestLogger())
		require.NoError(t, err)

		task, _ := f.queuedTask(t, "Q1")
		require.NoError(t, f.tasks.Cancel(context.Background(), task.ID, time.Now()))

		ok, err := c.Claim(context.Background(), task)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, domain.TaskStatusQueueing, task.Status, "snapshot untouched")
		assert.Empty(t, f.recorder.Types())
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c, err := NewClaimer(f.tasks, nil, nil)
		require.NoError(t, err)

		boom := errors.New("connection reset")
		f.tasks.ClaimFn = func(context.Context, uuid.UUID, time.Time) (bool, error) {
			return false, boom
		}
		task, _ := f.queuedTask(t, "Q1")
		ok, err := c.Claim(context.Background(), task)
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})

	_, err := NewClaimer(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestProgressTracker_Advance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p, err := NewProgressTracker(f.tasks, f.emitter, setupTestLogger())
	require.NoError(t, err)
	ctx := context.Background()

	task, _ := f.processingTask(t, "Q1", "Q2", "Q3")

	require.NoError(t, p.Advance(ctx, task, 2))
	assert.Equal(t, 2, task.ProcessedRows)

	require.NoError(t, p.Advance(ctx, task, 1))
	assert.Equal(t, 2, task.ProcessedRows, "never moves backwards")
	assert.Equal(t, 2, f.tasks.Get(task.ID).ProcessedRows)

	require.NoError(t, p.Advance(ctx, task, 5))
	assert.Equal(t, 3, task.ProcessedRows, "capped at row count")
	assert.Equal(t, 3, f.tasks.Get(task.ID).ProcessedRows)

	assert.Equal(t, []events.EventType{events.TaskProgress, events.TaskProgress, events.TaskProgress},
		f.recorder.Types())

	boom := errors.New("deadlock detected")
	f.tasks.UpdateProgressFn = func(context.Context, uuid.UUID, int) error { return boom }
	err = p.Advance(ctx, task, 3)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.recorder.Types(), 3, "no event for a failed write")

	_, err = NewProgressTracker(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}
