package logger

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expected := NewLogger(TestConfig())
		ctx := ContextWithLogger(context.Background(), expected)

		actual := FromContext(ctx)

		require.NotNil(t, actual)
		assert.Equal(t, expected, actual)
	})

	t.Run("Should return default logger when no logger in context", func(t *testing.T) {
		l := FromContext(context.Background())
		require.NotNil(t, l)
		l.Info("test message from default logger")
	})

	t.Run("Should return default logger when wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, "not a logger")
		l := FromContext(ctx)
		require.NotNil(t, l)
		l.Info("test message from fallback logger")
	})

	t.Run("Should return default logger when nil logger in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, (Logger)(nil))
		l := FromContext(ctx)
		require.NotNil(t, l)
		l.Info("test message from fallback logger")
	})
}

func TestLogLevel_ToCharmlogLevel(t *testing.T) {
	t.Run("Should convert all log levels to charm log levels correctly", func(t *testing.T) {
		cases := []struct {
			level    LogLevel
			expected int
		}{
			{DebugLevel, -4},
			{InfoLevel, 0},
			{WarnLevel, 4},
			{ErrorLevel, 8},
			{DisabledLevel, 1000},
			{LogLevel("unknown"), 0},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.expected, int(tc.level.ToCharmlogLevel()))
		}
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should create logger with provided config", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: InfoLevel, Output: &buf, TimeFormat: "15:04:05"})
		l.Info("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("Should use default config when nil config provided", func(t *testing.T) {
		l := NewLogger(nil)
		require.NotNil(t, l)
		l.Info("test default config")
	})

	t.Run("Should create logger with JSON formatting when enabled", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true, TimeFormat: "15:04:05"})
		l.Info("test message")
		out := buf.String()
		assert.Contains(t, out, "test message")
		assert.True(t, strings.Contains(out, "{") && strings.Contains(out, "}"))
	})
}

func TestLogger_With(t *testing.T) {
	t.Run("Should create logger with additional context fields", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLogger(&Config{Level: InfoLevel, Output: &buf, TimeFormat: "15:04:05"})
		withCtx := base.With("component", "test", "operation", "validate")
		withCtx.Info("operation completed")
		out := buf.String()
		assert.Contains(t, out, "component")
		assert.Contains(t, out, "validate")
		assert.Contains(t, out, "operation completed")
	})
}

func TestConfigDefaults(t *testing.T) {
	t.Run("Should provide correct default configuration", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, InfoLevel, cfg.Level)
		assert.Equal(t, os.Stdout, cfg.Output)
		assert.False(t, cfg.JSON)
		assert.Equal(t, "15:04:05", cfg.TimeFormat)
	})

	t.Run("Should provide correct test configuration", func(t *testing.T) {
		cfg := TestConfig()
		assert.Equal(t, DisabledLevel, cfg.Level)
		assert.Equal(t, io.Discard, cfg.Output)
	})
}

func TestLoggerLevels(t *testing.T) {
	t.Run("Should respect log level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: WarnLevel, Output: &buf, TimeFormat: "15:04:05"})
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")
		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("Should disable all logging when DisabledLevel is used", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: DisabledLevel, Output: &buf, TimeFormat: "15:04:05"})
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")
		assert.Empty(t, buf.String())
	})
}
