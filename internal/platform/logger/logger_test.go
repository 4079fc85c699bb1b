package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/phrazzld/ragbench/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseLevel(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestSetupJSON(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := setup(config.LogConfig{Level: "warn", Service: "ragbench-worker"}, &buf)
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept", "task_id", "t-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "t-1", entry["task_id"])
	assert.Equal(t, "ragbench-worker", entry["service"])
	assert.Same(t, l, slog.Default())
}

func TestContextLogger(t *testing.T) {
	t.Run("stored logger is returned", func(t *testing.T) {
		custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		ctx := WithLogger(context.Background(), custom)
		assert.Same(t, custom, FromContext(ctx))
		assert.Same(t, custom, FromContextOrDefault(ctx, slog.Default()))
	})

	t.Run("fallback when absent", func(t *testing.T) {
		fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
		assert.Same(t, slog.Default(), FromContextOrDefault(context.Background(), nil))
	})

	t.Run("nil logger panics", func(t *testing.T) {
		assert.Panics(t, func() { WithLogger(context.Background(), nil) })
	})

	t.Run("attrs are carried", func(t *testing.T) {
		ctx, buf := NewCaptureContext(t)
		ctx, _ = WithAttrs(ctx, "task_id", "abc")
		FromContext(ctx).Info("hello")
		assert.Equal(t, []string{"hello"}, buf.Messages())
		assert.Contains(t, buf.String(), `"task_id":"abc"`)
	})
}
