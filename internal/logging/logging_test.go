package logging

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

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	SetLevel(LevelDebug)
	t.Cleanup(func() {
		SetOutput(prev)
		SetLevel(LevelInfo)
	})
	return &buf
}

func lastEvent(t *testing.T, buf *bytes.Buffer) Event {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &e))
	return e
}

func TestLoggerEmitsJSON(t *testing.T) {
	buf := captureOutput(t)

	New("orchestrator").WithRun("run-1").Error("batch_failed", map[string]interface{}{"batch": 2}, errors.New("boom"))

	e := lastEvent(t, buf)
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "orchestrator", e.Component)
	assert.Equal(t, "batch_failed", e.Event)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "boom", e.Error)
	assert.EqualValues(t, 2, e.Extra["batch"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	l := New("x")
	l.Debug("d", nil)
	l.Info("i", nil)
	assert.Empty(t, buf.String())

	l.Warn("w", nil, nil)
	assert.Equal(t, "w", lastEvent(t, buf).Event)
}

func TestTimedEvent(t *testing.T) {
	buf := captureOutput(t)
	New("x").TimedEvent("done", time.Now().Add(-20*time.Millisecond), nil)
	assert.GreaterOrEqual(t, lastEvent(t, buf).Duration, int64(20))
}

func TestRunIDContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "abc")
	assert.Equal(t, "abc", RunIDFromContext(ctx))
	assert.Equal(t, "", RunIDFromContext(context.Background()))
	assert.Equal(t, "abc", FromContext(ctx, "c").runID)
}

func TestRecoveryWrapError(t *testing.T) {
	captureOutput(t)
	var seen interface{}
	h := NewRecoveryHandler("test")
	h.OnPanic = func(err interface{}, stack string) { seen = err }

	err := h.WrapError(func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, "kaboom", seen)
}

func TestRecoveryRepanic(t *testing.T) {
	captureOutput(t)
	called := false
	h := NewRecoveryHandler("test")
	h.OnPanic = func(interface{}, string) { called = true }

	assert.PanicsWithValue(t, "again", func() {
		h.Repanic(func() { panic("again") })
	})
	assert.True(t, called)
}
