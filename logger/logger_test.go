package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithLevel(WarnLevel))

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message", String("store", "redis"))
	l.Error("error message", FieldError(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "redis", lines[0]["store"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithLevel(DebugLevel)).
		WithFields(String("component", "sweeper"), Int("attempt", 2)).
		WithField("backend", "file")

	l.Info("sweep done", Int("removed", 3), Duration("took", 1500*time.Millisecond))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "sweeper", lines[0]["component"])
	assert.EqualValues(t, 2, lines[0]["attempt"])
	assert.Equal(t, "file", lines[0]["backend"])
	assert.EqualValues(t, 3, lines[0]["removed"])
	assert.EqualValues(t, 1500, lines[0]["took"])
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).Info("handled")
	l.WithContext(context.Background()).Info("no id")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	_, ok := lines[1]["request_id"]
	assert.False(t, ok)
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithLevel(ErrorLevel))
	l.Info("hidden")
	l.SetLevel(InfoLevel)
	l.Info("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestNopLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Nop()
	l.SetOutput(&buf)
	l.Error("nothing")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"":        InfoLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"off":     Disabled,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
