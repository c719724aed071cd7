package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := new(bytes.Buffer)
	return NewForWriter(buf, level, format, false), buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		l, buf := newTestLogger(t, "DEBUG", "text")
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("WarnLevelHidesDebugAndInfo", func(t *testing.T) {
		l, buf := newTestLogger(t, "WARN", "text")
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("ErrorAlwaysEmitted", func(t *testing.T) {
		l, buf := newTestLogger(t, "ERROR", "text")
		l.Debug("debug message")
		l.Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "error message")
	})
}

func TestJSONFormat(t *testing.T) {
	l, buf := newTestLogger(t, "INFO", "json")
	l.Info("broker connected", KeyScope, "default", KeyCID, "48eaee88-2d5e-43d4-b0e9-7a9d5977ae9d")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "broker connected", decoded["msg"])
	assert.Equal(t, "default", decoded[KeyScope])
	assert.Equal(t, "48eaee88-2d5e-43d4-b0e9-7a9d5977ae9d", decoded[KeyCID])
}

func TestContextFieldInjection(t *testing.T) {
	l, buf := newTestLogger(t, "INFO", "json")

	lc := NewLogContext("48eaee88-2d5e-43d4-b0e9-7a9d5977ae9d").WithScope("default")
	ctx := WithContext(context.Background(), lc)

	l.InfoCtx(ctx, "scope added")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "default", decoded[KeyScope])
	assert.Equal(t, "48eaee88-2d5e-43d4-b0e9-7a9d5977ae9d", decoded[KeyCID])
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	l, _ := newTestLogger(t, "INFO", "text")
	l.SetLevel("NOT-A-LEVEL")
	assert.Equal(t, LevelInfo, Level(l.currentLevel.Load()))
}

func TestIndependentLoggerInstances(t *testing.T) {
	a, bufA := newTestLogger(t, "DEBUG", "text")
	b, bufB := newTestLogger(t, "ERROR", "text")

	a.Debug("from a")
	b.Debug("from b")

	assert.True(t, strings.Contains(bufA.String(), "from a"))
	assert.Empty(t, bufB.String())
}
