package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/config"
	"github.com/phrazzld/ragbench/internal/events"
	goredis "github.com/redis/go-redis/v9"
)

// TerminalSnapshotTTL is how long a snapshot is kept after its task stops.
const TerminalSnapshotTTL = 24 * time.Hour

// ErrNilClient is returned when the publisher is built without a client.
var ErrNilClient = errors.New("redis client cannot be nil")

// client is the subset of goredis.Cmdable the publisher uses.
type client interface {
	HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// ProgressPublisher is an events.EventHandler that stores the latest snapshot
// of each task in a hash and publishes every event as JSON on a channel.
type ProgressPublisher struct {
	client    client
	keyPrefix string
	channel   string
	logger    *slog.Logger
}

var _ events.EventHandler = (*ProgressPublisher)(nil)

// NewProgressPublisher creates a publisher. An empty channel disables
// publishing while still keeping snapshots.
func NewProgressPublisher(c client, cfg config.RedisConfig, logger *slog.Logger) (*ProgressPublisher, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressPublisher{
		client:    c,
		keyPrefix: cfg.KeyPrefix,
		channel:   cfg.Channel,
		logger:    logger.With(slog.String("component", "progress_publisher")),
	}, nil
}

// Key returns the hash key holding the snapshot of taskID.
func (p *ProgressPublisher) Key(taskID uuid.UUID) string {
	return p.keyPrefix + taskID.String()
}

// HandleEvent implements events.EventHandler.
func (p *ProgressPublisher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	key := p.Key(event.TaskID)

	err := p.client.HSet(ctx, key,
		"status", string(event.Status),
		"task_type", string(event.TaskType),
		"processed_rows", strconv.Itoa(event.ProcessedRows),
		"row_count", strconv.Itoa(event.RowCount),
		"progress", strconv.Itoa(event.Progress),
		"error", event.Error,
		"updated_at", event.OccurredAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to store snapshot for task %s: %w", event.TaskID, err)
	}

	if event.Status.IsTerminal() {
		if err := p.client.Expire(ctx, key, TerminalSnapshotTTL).Err(); err != nil {
			return fmt.Errorf("failed to set snapshot expiry for task %s: %w", event.TaskID, err)
		}
	}

	if p.channel == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event for task %s: %w", event.TaskID, err)
	}

	p.logger.DebugContext(ctx, "published task event",
		slog.String("task_id", event.TaskID.String()),
		slog.String("event_type", string(event.Type)),
		slog.Int("progress", event.Progress))
	return nil
}

// NewClient connects to the configured Redis server and verifies it with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}
