package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/config"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/evaluation"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/platform/gemini"
	"github.com/phrazzld/ragbench/internal/platform/logger"
	"github.com/phrazzld/ragbench/internal/platform/postgres"
	"github.com/phrazzld/ragbench/internal/platform/redis"
	"github.com/phrazzld/ragbench/internal/retry"
	"github.com/phrazzld/ragbench/internal/store"
	"github.com/phrazzld/ragbench/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

// application holds the wired worker and releases its resources on cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	taskStore store.TaskStore
	emitter   *events.InMemoryEventEmitter
	pipeline  *task.Pipeline
	submitter *task.Submitter
}

// run loads configuration and executes the command selected by opts.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := setupDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if opts.migrate {
		defer db.Close()
		return postgres.Migrate(ctx, db, log)
	}

	app, err := newApplication(ctx, cfg, log, db)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer app.cleanup()

	switch {
	case opts.submit != "":
		return app.submit(ctx, opts.submit, stdout)
	case opts.cancel != "":
		return app.cancel(ctx, opts.cancel)
	case opts.status != "":
		return app.status(ctx, opts.status, stdout)
	case opts.process != "":
		return app.process(ctx, opts.process)
	case opts.once:
		return app.runOnce(ctx)
	default:
		return app.serve(ctx)
	}
}

// newApplication wires stores, the evaluation gateway, the event fan-out and
// the pipeline around an open database.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{config: cfg, logger: log, db: db}

	app.taskStore = postgres.NewPostgresTaskStore(db, log)
	itemStore := postgres.NewPostgresItemStore(db, log)
	resultStore := postgres.NewPostgresResultStore(db, log)

	client, err := gemini.NewClient(ctx, cfg.LLM, log.With(slog.String("component", "gemini")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	log.Info("LLM client initialized",
		slog.String("answer_model", cfg.LLM.AnswerModel),
		slog.String("embedding_model", cfg.LLM.EmbeddingModel))

	policy := retry.Policy{
		MaxAttempts: cfg.Evaluation.MaxAttempts,
		BaseDelay:   cfg.Evaluation.BaseDelay,
		Multiplier:  cfg.Evaluation.Multiplier,
	}
	gateway, err := evaluation.NewGateway(client, policy, cfg.Evaluation.CallTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize evaluation gateway: %w", err)
	}

	app.emitter = events.NewInMemoryEventEmitter(log)
	if cfg.Redis.Enabled() {
		app.redis, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		publisher, err := redis.NewProgressPublisher(app.redis, cfg.Redis, log)
		if err != nil {
			_ = app.redis.Close()
			return nil, err
		}
		app.emitter.RegisterHandler(publisher)
		log.Info("progress mirror enabled", slog.String("channel", cfg.Redis.Channel))
	}

	processor, err := task.NewProcessor(app.taskStore, itemStore, resultStore, gateway, app.emitter, log,
		task.WithHeartbeatInterval(cfg.Worker.HeartbeatInterval))
	if err != nil {
		return nil, app.abort(err)
	}
	registry := task.NewRegistry()
	if err := registry.Register(domain.TaskTypeRAGEvaluation, processor); err != nil {
		return nil, app.abort(err)
	}

	app.pipeline, err = task.NewPipeline(task.Config{
		TaskType:      domain.TaskType(cfg.Worker.TaskType),
		PollInterval:  cfg.Worker.PollInterval,
		StaleAfter:    cfg.Worker.StaleAfter,
		OutcomeBuffer: cfg.Worker.OutcomeBuffer,
	}, app.taskStore, registry, app.emitter, log)
	if err != nil {
		return nil, app.abort(err)
	}

	app.submitter, err = task.NewSubmitter(db, app.taskStore, itemStore, log)
	if err != nil {
		return nil, app.abort(err)
	}

	log.Info("worker initialized", slog.Any("task_types", registry.Types()))
	return app, nil
}

func (app *application) abort(err error) error {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	return fmt.Errorf("failed to initialize pipeline: %w", err)
}

// serve polls until ctx is done, logging every finished run.
func (app *application) serve(ctx context.Context) error {
	if err := app.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	app.logger.Info("worker running",
		slog.String("task_type", app.config.Worker.TaskType),
		slog.Duration("poll_interval", app.config.Worker.PollInterval))

	outcomes := app.pipeline.Outcomes()
	for {
		select {
		case o := <-outcomes:
			app.logOutcome(o)
		case <-ctx.Done():
			app.logger.Info("shutdown requested, stopping worker")
			app.pipeline.Stop()
			for o := range outcomes {
				app.logOutcome(o)
			}
			return nil
		}
	}
}

func (app *application) runOnce(ctx context.Context) error {
	o, err := app.pipeline.RunOnce(ctx)
	if err != nil {
		return err
	}
	if o == nil {
		app.logger.Info("no task to process")
		return nil
	}
	app.logOutcome(*o)
	return o.Err
}

func (app *application) process(ctx context.Context, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return app.pipeline.ProcessTask(ctx, id)
}

func (app *application) cancel(ctx context.Context, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return app.pipeline.CancelTask(ctx, id)
}

// statusView is what -status prints.
type statusView struct {
	*domain.Task
	Progress int `json:"progress"`
}

func (app *application) status(ctx context.Context, raw string, stdout io.Writer) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	t, err := app.pipeline.Status(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(stdout, statusView{Task: t, Progress: t.Progress()})
}

func (app *application) submit(ctx context.Context, path string, stdout io.Writer) error {
	in, err := readSubmission(path)
	if err != nil {
		return err
	}
	t, err := app.submitter.Submit(ctx, *in)
	if err != nil {
		return err
	}
	return writeJSON(stdout, statusView{Task: t, Progress: t.Progress()})
}

// readSubmission decodes a task request from a JSON file. Unknown fields are
// rejected so that typos do not silently drop data.
func readSubmission(path string) (*task.NewTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission: %w", err)
	}
	defer f.Close()

	var in task.NewTask
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode submission %s: %w", path, err)
	}
	if in.Type == "" {
		in.Type = domain.TaskTypeRAGEvaluation
	}
	return &in, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (app *application) logOutcome(o task.Outcome) {
	attrs := []any{
		slog.String("task_id", o.TaskID.String()),
		slog.String("status", string(o.Status)),
		slog.Int("processed_rows", o.ProcessedRows),
		slog.Duration("duration", o.Duration),
	}
	if o.Err != nil {
		app.logger.Warn("task run ended with error", append(attrs, slog.String("error", o.Err.Error()))...)
		return
	}
	app.logger.Info("task run finished", attrs...)
}

// cleanup stops the pipeline and closes connections.
func (app *application) cleanup() {
	if app.pipeline != nil {
		app.pipeline.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", slog.String("error", err.Error()))
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database connection", slog.String("error", err.Error()))
	}
	app.logger.Info("worker shutdown completed")
}
