package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/ragbench/internal/config"
	"github.com/phrazzld/ragbench/internal/domain"
	"github.com/phrazzld/ragbench/internal/events"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records commands instead of sending them.
type fakeClient struct {
	hashes    map[string][]interface{}
	expiries  map[string]time.Duration
	published map[string][]string
	hsetErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		hashes:    map[string][]interface{}{},
		expiries:  map[string]time.Duration{},
		published: map[string][]string{},
	}
}

func (f *fakeClient) HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd {
	cmd := goredis.NewIntCmd(ctx)
	if f.hsetErr != nil {
		cmd.SetErr(f.hsetErr)
		return cmd
	}
	f.hashes[key] = values
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd {
	f.expiries[key] = expiration
	cmd := goredis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func fields(values []interface{}) map[string]string {
	out := map[string]string{}
	for i := 0; i+1 < len(values); i += 2 {
		out[values[i].(string)] = values[i+1].(string)
	}
	return out
}

func newPublisher(t *testing.T, c client, channel string) *ProgressPublisher {
	t.Helper()
	p, err := NewProgressPublisher(c, config.RedisConfig{
		KeyPrefix: "ragbench:task:",
		Channel:   channel,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func progressEvent(status domain.TaskStatus, processed, total int) *events.TaskEvent {
	task := &domain.Task{
		ID:            uuid.New(),
		Type:          domain.TaskTypeRAGEvaluation,
		Status:        status,
		RowCount:      total,
		ProcessedRows: processed,
	}
	return events.NewTaskEvent(events.TaskProgress, task)
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("stores snapshot and publishes", func(t *testing.T) {
		fc := newFakeClient()
		p := newPublisher(t, fc, "ragbench:progress")
		event := progressEvent(domain.TaskStatusProcessing, 1, 3)

		require.NoError(t, p.HandleEvent(ctx, event))

		key := "ragbench:task:" + event.TaskID.String()
		snap := fields(fc.hashes[key])
		assert.Equal(t, "processing", snap["status"])
		assert.Equal(t, "1", snap["processed_rows"])
		assert.Equal(t, "3", snap["row_count"])
		assert.Equal(t, "33", snap["progress"])
		assert.NotContains(t, fc.expiries, key, "running tasks do not expire")

		require.Len(t, fc.published["ragbench:progress"], 1)
		var decoded events.TaskEvent
		require.NoError(t, json.Unmarshal([]byte(fc.published["ragbench:progress"][0]), &decoded))
		assert.Equal(t, event.TaskID, decoded.TaskID)
		assert.Equal(t, events.TaskProgress, decoded.Type)
	})

	t.Run("terminal snapshot expires", func(t *testing.T) {
		fc := newFakeClient()
		p := newPublisher(t, fc, "")
		event := progressEvent(domain.TaskStatusCompleted, 3, 3)

		require.NoError(t, p.HandleEvent(ctx, event))

		assert.Equal(t, TerminalSnapshotTTL, fc.expiries[p.Key(event.TaskID)])
		assert.Empty(t, fc.published, "empty channel disables publishing")
	})

	t.Run("write error", func(t *testing.T) {
		fc := newFakeClient()
		fc.hsetErr = errors.New("connection refused")
		p := newPublisher(t, fc, "ragbench:progress")

		err := p.HandleEvent(ctx, progressEvent(domain.TaskStatusProcessing, 0, 1))
		assert.ErrorIs(t, err, fc.hsetErr)
		assert.Empty(t, fc.published)
	})
}

func TestNewProgressPublisher(t *testing.T) {
	_, err := NewProgressPublisher(nil, config.RedisConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilClient)
}
