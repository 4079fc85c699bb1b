package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/redact"
	"github.com/phrazzld/ragbench/internal/store"
)

// Processor evaluates the items of a claimed task one by one. It implements
// Handler for evaluation tasks.
type Processor struct {
	*lifecycle
	items     store.ItemStore
	results   store.ResultStore
	evaluator Evaluator
	progress  *ProgressTracker
	heartbeat time.Duration
}

var _ Handler = (*Processor)(nil)

// DefaultHeartbeatInterval is how often a task is touched while one of its
// items is being evaluated.
const DefaultHeartbeatInterval = time.Minute

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithHeartbeatInterval sets how often the task is touched during an
// evaluation. It must be well below the poller's StaleAfter.
func WithHeartbeatInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.heartbeat = d
	}
}

// NewProcessor creates a Processor. A nil emitter discards events.
func NewProcessor(
	tasks store.TaskStore,
	items store.ItemStore,
	results store.ResultStore,
	evaluator Evaluator,
	emitter events.EventEmitter,
	log *slog.Logger,
	opts ...ProcessorOption,
) (*Processor, error) {
	if tasks == nil || items == nil || results == nil {
		return nil, ErrNilStore
	}
	if evaluator == nil {
		return nil, ErrNilEvaluator
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "row_processor"))

	progress, err := NewProgressTracker(tasks, emitter, log)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		lifecycle: newLifecycle(tasks, emitter, log),
		items:     items,
		results:   results,
		evaluator: evaluator,
		progress:  progress,
		heartbeat: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.heartbeat <= 0 {
		return nil, fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidConfig)
	}
	return p, nil
}

// Run processes task, which must already be claimed.
//
// Items are visited in ascending id order. Before each item the stored status
// is re-read: a cancelled task stops with its progress recorded and its status
// untouched. Items that already have a result are counted without calling the
// evaluator, which makes a second run over the same task safe. The first item
// that cannot be evaluated fails the task. A task without items fails too.
// While an item is evaluated the task is touched on every heartbeat, so other
// pollers do not take it for stale.
//
// The processed counter is the number of items holding a result, so a resumed
// run recounts earlier work instead of adding to the stored value.
//
// If ctx is cancelled mid-run the progress so far is recorded and the task is
// left processing, to be resumed once it goes stale. In that case Run returns
// the context error.
func (p *Processor) Run(ctx context.Context, task *domain.Task) error {
	ctx, log := logger.WithAttrs(logger.WithLogger(ctx, p.logger),
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)))

	items, err := p.items.ListByTask(ctx, task.ID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := "failed to load items: " + redact.Error(err)
		if ferr := p.fail(ctx, task, task.ProcessedRows, msg); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: %s", ErrTaskFailed, msg)
	}

	if len(items) == 0 {
		msg := fmt.Sprintf("%s: task has no items", domain.ErrDataIntegrity)
		if ferr := p.fail(ctx, task, 0, msg); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: %w", ErrTaskFailed, domain.ErrDataIntegrity)
	}

	log.InfoContext(ctx, "processing task",
		slog.Int("items", len(items)),
		slog.Int("processed_rows", task.ProcessedRows))

	processed := 0
	for i, item := range items {
		position := i + 1
		itemCtx, itemLog := logger.WithAttrs(ctx,
			slog.Int64("item_id", item.ID),
			slog.Int("position", position))

		stop, err := p.checkStatus(itemCtx, task, processed)
		if err != nil {
			return p.abort(itemCtx, task, processed, position, item, err)
		}
		if stop {
			return nil
		}

		done, err := p.results.ExistsForItem(itemCtx, item.ID)
		if err != nil {
			return p.abort(itemCtx, task, processed, position, item, err)
		}
		if done {
			processed++
			itemLog.DebugContext(itemCtx, "item already evaluated, skipping")
			continue
		}

		stopHeartbeat := p.progress.Heartbeat(itemCtx, task.ID, p.heartbeat)
		result, err := p.evaluator.Evaluate(itemCtx, item)
		stopHeartbeat()
		if err != nil {
			return p.abort(itemCtx, task, processed, position, item, err)
		}

		if err := p.results.Create(itemCtx, result); err != nil {
			if !errors.Is(err, store.ErrResultExists) {
				return p.abort(itemCtx, task, processed, position, item, err)
			}
			itemLog.InfoContext(itemCtx, "result stored concurrently, keeping existing one")
		}
		processed++

		if err := p.progress.Advance(itemCtx, task, processed); err != nil {
			itemLog.WarnContext(itemCtx, "failed to record progress", slog.String("error", err.Error()))
		}
		itemLog.DebugContext(itemCtx, "item evaluated",
			slog.Float64("answer_similarity", result.AnswerSimilarity),
			slog.Float64("citation_similarity", result.CitationSimilarity),
			slog.Duration("duration", result.Duration))
	}

	return p.complete(ctx, task, processed)
}

// checkStatus re-reads the task. It reports stop when the task is no longer
// processing; a cancelled task gets its progress recorded first.
func (p *Processor) checkStatus(ctx context.Context, task *domain.Task, processed int) (bool, error) {
	current, err := p.tasks.GetByID(ctx, task.ID)
	if err != nil {
		return false, fmt.Errorf("failed to read task status: %w", err)
	}
	if current.Status == domain.TaskStatusProcessing {
		return false, nil
	}

	log := logger.FromContext(ctx)
	if current.Status == domain.TaskStatusCancelled {
		if err := p.progress.Advance(ctx, current, processed); err != nil {
			log.WarnContext(ctx, "failed to record progress", slog.String("error", err.Error()))
		}
		log.InfoContext(ctx, "task cancelled, stopping", slog.Int("processed_rows", current.ProcessedRows))
	} else {
		log.WarnContext(ctx, "task left processing, stopping", slog.String("status", string(current.Status)))
	}
	*task = *current
	return true, nil
}

// abort ends the run after an item could not be handled. A cancelled context
// records progress and leaves the task processing; any other error fails it.
func (p *Processor) abort(
	ctx context.Context,
	task *domain.Task,
	processed, position int,
	item *domain.Item,
	cause error,
) error {
	log := logger.FromContext(ctx)

	if ctx.Err() != nil {
		wctx, cancel := detached(ctx)
		defer cancel()
		if err := p.progress.Advance(wctx, task, processed); err != nil {
			log.WarnContext(ctx, "failed to record progress", slog.String("error", err.Error()))
		}
		log.InfoContext(ctx, "run interrupted, task left processing",
			slog.Int("processed_rows", task.ProcessedRows))
		return ctx.Err()
	}

	if err := p.progress.Advance(ctx, task, processed); err != nil {
		log.WarnContext(ctx, "failed to record progress", slog.String("error", err.Error()))
	}

	msg := fmt.Sprintf("item %d (id=%d) failed: %s", position, item.ID, redact.Error(cause))
	if err := p.fail(ctx, task, processed, msg); err != nil {
		return err
	}
	if task.Status != domain.TaskStatusFailed {
		return nil
	}
	return fmt.Errorf("%w: item %d (id=%d): %w", ErrTaskFailed, position, item.ID, cause)
}
