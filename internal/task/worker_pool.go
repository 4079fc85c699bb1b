package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/redact"
	"github.com/phrazzld/ragbench/internal/store"
)

// RunFunc executes one claimed task.
type RunFunc func(ctx context.Context, task *domain.Task) error

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// OutcomeBuffer is the capacity of the outcome channel. Outcomes that do
	// not fit are dropped with a warning. If zero or negative, defaults to 16.
	OutcomeBuffer int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{OutcomeBuffer: 16}
}

// WorkerPool runs claimed tasks on a single worker goroutine. It accepts a
// task only while idle, so at most one task is queued or running at a time.
type WorkerPool struct {
	run  RunFunc
	life *lifecycle

	// queue has room for exactly one task; busy guards admission
	queue    chan *domain.Task
	busy     atomic.Bool
	outcomes chan Outcome

	mu      sync.Mutex
	started bool
	closed  bool

	// wg tracks the worker goroutine for clean shutdown
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// NewWorkerPool creates a worker pool that executes tasks with run. The task
// store is used to fail tasks whose handler panics.
func NewWorkerPool(
	run RunFunc,
	tasks store.TaskStore,
	emitter events.EventEmitter,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPool, error) {
	if run == nil {
		return nil, ErrNilHandler
	}
	if tasks == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "worker_pool"))

	buffer := config.OutcomeBuffer
	if buffer <= 0 {
		buffer = DefaultWorkerPoolConfig().OutcomeBuffer
	}

	return &WorkerPool{
		run:      run,
		life:     newLifecycle(tasks, emitter, logger),
		queue:    make(chan *domain.Task, 1),
		outcomes: make(chan Outcome, buffer),
		logger:   logger,
	}, nil
}

// Start launches the worker. Tasks run under a context derived from ctx that
// is cancelled by Stop.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return nil
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.worker()
	p.logger.Debug("worker pool started")
	return nil
}

// Stop cancels the running task, waits for the worker to return and closes
// the outcome channel. A task that was queued but not started stays in the
// store as processing.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.outcomes)
	p.logger.Debug("worker pool stopped")
}

// Submit hands task to the worker. It never blocks: a pool that already holds
// a task returns ErrPoolBusy.
func (p *WorkerPool) Submit(task *domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.admit(); err != nil {
		return err
	}

	select {
	case p.queue <- task:
		p.logger.Debug("task enqueued", slog.String("task_id", task.ID.String()))
		return nil
	default:
		p.busy.Store(false)
		return ErrPoolBusy
	}
}

// acquire reserves the pool for a task run on the caller's goroutine. The
// reservation is held until release, and Submit is refused meanwhile.
func (p *WorkerPool) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admit()
}

func (p *WorkerPool) release() {
	p.busy.Store(false)
}

// admit must be called with mu held.
func (p *WorkerPool) admit() error {
	if p.closed {
		return ErrPoolClosed
	}
	if !p.busy.CompareAndSwap(false, true) {
		return ErrPoolBusy
	}
	return nil
}

// Busy reports whether a task is queued or running.
func (p *WorkerPool) Busy() bool {
	return p.busy.Load()
}

// Outcomes returns the channel on which finished runs are reported. It is
// closed by Stop.
func (p *WorkerPool) Outcomes() <-chan Outcome {
	return p.outcomes
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.queue {
		if p.ctx.Err() != nil {
			p.logger.Info("worker stopping, queued task left for reclaim",
				slog.String("task_id", task.ID.String()))
			p.busy.Store(false)
			continue
		}

		outcome := p.Execute(p.ctx, task)
		p.busy.Store(false)

		select {
		case p.outcomes <- outcome:
		default:
			p.logger.Warn("outcome channel full, dropping outcome",
				slog.String("task_id", outcome.TaskID.String()))
		}
	}
}

// Execute runs task synchronously. A panic in the handler is recovered and
// the task is failed with the panic value as its message.
func (p *WorkerPool) Execute(ctx context.Context, task *domain.Task) (out Outcome) {
	start := time.Now()
	log := p.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)))

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.ErrorContext(ctx, "task handler panicked",
			slog.String("panic", fmt.Sprint(r)),
			slog.String("stack", string(debug.Stack())))

		msg := "task handler panicked: " + redact.String(fmt.Sprint(r))
		wctx, cancel := detached(ctx)
		defer cancel()
		err := p.life.fail(wctx, task, task.ProcessedRows, msg)
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		}
		out = newOutcome(task, start, err)
	}()

	err := p.run(ctx, task)
	out = newOutcome(task, start, err)

	switch {
	case err == nil:
		log.InfoContext(ctx, "task run finished",
			slog.String("status", string(task.Status)),
			slog.Duration("duration", out.Duration))
	case errors.Is(err, ErrTaskFailed), errors.Is(err, context.Canceled):
		log.InfoContext(ctx, "task run ended",
			slog.String("status", string(task.Status)),
			slog.String("error", err.Error()))
	default:
		log.ErrorContext(ctx, "task run failed", slog.String("error", err.Error()))
	}
	return out
}

func newOutcome(task *domain.Task, start time.Time, err error) Outcome {
	return Outcome{
		TaskID:        task.ID,
		TaskType:      task.Type,
		Status:        task.Status,
		ProcessedRows: task.ProcessedRows,
		Duration:      time.Since(start),
		Err:           err,
	}
}
