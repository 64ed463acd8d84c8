package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	// Test Ctx without a logger in the context
	l1 := Ctx(ctx)
	require.NotNil(t, l1, "Ctx returned nil instead of default logger")
	assert.Equal(t, defaultLogger, l1, "Ctx should return defaultLogger")

	customLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, defaultLogger, customLogger, "Failed to create a distinct custom logger for testing")

	ctxWithLogger := With(ctx, customLogger)
	l2 := Ctx(ctxWithLogger)
	require.NotNil(t, l2, "Ctx returned nil, expected custom logger")
	assert.Equal(t, customLogger, l2, "Ctx should return customLogger")
}

func TestNewHandler(t *testing.T) {
	t.Run("json critical", func(t *testing.T) {
		var buf bytes.Buffer
		h, err := NewHandler("json", &buf, slog.LevelInfo)
		require.NoError(t, err)

		ctx := With(context.Background(), slog.New(h))
		Critical(ctx, "inverter ip address is not set")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "CRITICAL", line["level"])
		assert.Equal(t, "inverter ip address is not set", line["msg"])
	})

	t.Run("text warn", func(t *testing.T) {
		var buf bytes.Buffer
		h, err := NewHandler("text", &buf, slog.LevelInfo)
		require.NoError(t, err)

		slog.New(h).Warn("status error")
		assert.True(t, strings.Contains(buf.String(), "level=WARN"), buf.String())
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		h, err := NewHandler("", &buf, slog.LevelWarn)
		require.NoError(t, err)

		slog.New(h).Info("grabbing data from inverter")
		assert.Empty(t, buf.String())
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewHandler("xml", &bytes.Buffer{}, slog.LevelInfo)
		assert.ErrorContains(t, err, "unknown log format")
	})
}
