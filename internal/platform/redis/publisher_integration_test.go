//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/config"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	"github.com/phrazzld/ragbench/internal/platform/redis"
	"github.com/phrazzld/ragbench/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPublisherIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.RedisConfig{
		Addr:      testdb.RedisAddr(t),
		KeyPrefix: "ragbench:test:" + uuid.NewString() + ":",
		Channel:   "ragbench:test:progress",
	}

	client, err := redis.NewClient(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	sub := client.Subscribe(ctx, cfg.Channel)
	defer func() { _ = sub.Close() }()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	pub, err := redis.NewProgressPublisher(client, cfg, nil)
	require.NoError(t, err)

	task := &domain.Task{
		ID:            uuid.New(),
		Type:          domain.TaskTypeRAGEvaluation,
		Status:        domain.TaskStatusCompleted,
		RowCount:      2,
		ProcessedRows: 2,
	}
	require.NoError(t, pub.HandleEvent(ctx, events.NewTaskEvent(events.TaskCompleted, task)))

	snap, err := client.HGetAll(ctx, pub.Key(task.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, "completed", snap["status"])
	assert.Equal(t, "100", snap["progress"])

	ttl, err := client.TTL(ctx, pub.Key(task.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, task.ID.String())
}
