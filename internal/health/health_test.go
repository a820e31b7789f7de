package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func fixed(status string) CheckFunc {
	return func(context.Context) ComponentStatus { return ComponentStatus{Status: status} }
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5*time.Minute + 30*time.Second, "5m30s"},
		{2*time.Hour + 15*time.Minute + 30*time.Second, "2h15m30s"},
		{3*24*time.Hour + 5*time.Hour + 30*time.Minute, "3d5h30m"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUptime(tt.duration))
		})
	}
}

func TestRunAggregates(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]string
		want   string
	}{
		{"all ok", map[string]string{"a": StatusOK, "b": StatusOK}, Healthy},
		{"one degraded", map[string]string{"a": StatusOK, "b": StatusDegraded}, Degraded},
		{"error wins", map[string]string{"a": StatusDegraded, "b": StatusError}, Unhealthy},
		{"no checks", nil, Healthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Second)
			for n, s := range tt.checks {
				c.Add(n, fixed(s))
			}
			r := c.Run(context.Background())
			assert.Equal(t, tt.want, r.Status)
			assert.Len(t, r.Components, len(tt.checks))
			assert.NotEmpty(t, r.Timestamp)
		})
	}
}

func TestRunAppliesTimeout(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Add("slow", PingCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 0))

	r := c.Run(context.Background())
	assert.Equal(t, Unhealthy, r.Status)
	assert.Contains(t, r.Components["slow"].Error, "deadline")
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(pingFunc(func(context.Context) error { return nil }), time.Second)
	assert.Equal(t, StatusOK, ok(context.Background()).Status)

	failing := PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }), time.Second)
	got := failing(context.Background())
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "refused", got.Error)

	slow := PingCheck(pingFunc(func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}), time.Millisecond)
	assert.Equal(t, StatusDegraded, slow(context.Background()).Status)
}

func TestDirCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "home")
	assert.Equal(t, StatusOK, DirCheck(dir)(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Equal(t, StatusError, DirCheck(filepath.Join(file, "sub"))(context.Background()).Status)
}

func TestCredentialCheck(t *testing.T) {
	assert.Equal(t, StatusOK, CredentialCheck("mock", "")(context.Background()).Status)
	assert.Equal(t, StatusOK, CredentialCheck("openai", "sk-test")(context.Background()).Status)

	got := CredentialCheck("google", "")(context.Background())
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, got.Error, "google")
}

func TestFileCheck(t *testing.T) {
	assert.Equal(t, StatusDegraded, FileCheck(filepath.Join(t.TempDir(), "missing.yaml"))(context.Background()).Status)
}

func TestHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Add("store", fixed(StatusOK))

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, Healthy, r.Status)
	assert.Equal(t, []string{"store"}, r.Names())

	c.Add("provider", fixed(StatusError))
	rec = httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
