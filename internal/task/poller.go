package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/store"
)

// PollerConfig holds configuration for the poller
type PollerConfig struct {
	// TaskType is the only type of task this poller picks up
	TaskType domain.TaskType

	// Interval between ticks. If zero, defaults to 30 seconds.
	Interval time.Duration

	// StaleAfter is how long a processing task may go without a write before
	// another poller resumes it. Zero disables reclaiming.
	StaleAfter time.Duration
}

// Poller periodically claims the oldest queued task and hands it to the
// worker pool. A tick never waits for a task to finish.
type Poller struct {
	config  PollerConfig
	tasks   store.TaskStore
	claimer *Claimer
	pool    *WorkerPool
	logger  *slog.Logger
	now     func() time.Time

	// pollMu serializes ticks with direct PollOnce calls
	pollMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(config PollerConfig, tasks store.TaskStore, claimer *Claimer, pool *WorkerPool, logger *slog.Logger) (*Poller, error) {
	if tasks == nil {
		return nil, ErrNilStore
	}
	if claimer == nil || pool == nil {
		return nil, fmt.Errorf("%w: claimer and worker pool are required", ErrInvalidConfig)
	}
	if config.TaskType == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, domain.ErrEmptyTaskType)
	}
	if config.Interval < 0 || config.StaleAfter < 0 {
		return nil, fmt.Errorf("%w: durations cannot be negative", ErrInvalidConfig)
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		config:  config,
		tasks:   tasks,
		claimer: claimer,
		pool:    pool,
		logger: logger.With(
			slog.String("component", "poller"),
			slog.String("task_type", string(config.TaskType))),
		now: time.Now,
	}, nil
}

// PollOnce runs one scheduling tick. It reports whether a task was handed to
// the worker pool. A busy pool, an empty queue and a lost claim race are not
// errors.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if p.pool.Busy() {
		p.logger.DebugContext(ctx, "worker busy, skipping tick")
		return false, nil
	}

	if p.config.StaleAfter > 0 {
		staleBefore := p.now().UTC().Add(-p.config.StaleAfter)
		stale, err := p.tasks.ReclaimStale(ctx, p.config.TaskType, staleBefore)
		switch {
		case err == nil:
			p.logger.WarnContext(ctx, "resuming stale task",
				slog.String("task_id", stale.ID.String()),
				slog.Int("processed_rows", stale.ProcessedRows),
				slog.Time("last_update", stale.UpdatedAt))
			return p.dispatch(ctx, stale)
		case !errors.Is(err, store.ErrTaskNotFound):
			return false, fmt.Errorf("failed to reclaim stale task: %w", err)
		}
	}

	next, err := p.tasks.FindOldestQueued(ctx, p.config.TaskType)
	if errors.Is(err, store.ErrTaskNotFound) {
		p.logger.DebugContext(ctx, "no queued task")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find queued task: %w", err)
	}

	ok, err := p.claimer.Claim(ctx, next)
	if err != nil || !ok {
		return false, err
	}
	return p.dispatch(ctx, next)
}

// dispatch hands a claimed task to the pool. If the pool refuses it the task
// stays processing and is resumed once it goes stale; with reclaiming
// disabled nothing would ever resume it, so it is failed instead.
func (p *Poller) dispatch(ctx context.Context, task *domain.Task) (bool, error) {
	submitErr := p.pool.Submit(task)
	if submitErr == nil {
		return true, nil
	}
	err := fmt.Errorf("failed to dispatch task %s: %w", task.ID, submitErr)

	if p.config.StaleAfter == 0 {
		wctx, cancel := detached(ctx)
		defer cancel()
		msg := "task could not be dispatched: " + submitErr.Error()
		if ferr := p.claimer.fail(wctx, task, task.ProcessedRows, msg); ferr != nil {
			return false, errors.Join(err, ferr)
		}
	}
	return false, err
}

// Start runs PollOnce on every tick until Stop is called or ctx is done. The
// first tick happens immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("poller started",
		slog.Duration("interval", p.config.Interval),
		slog.Duration("stale_after", p.config.StaleAfter))
}

// Stop ends the tick loop and waits for it to exit. It does not stop the
// worker pool.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "poll failed", slog.String("error", err.Error()))
	}
}
