package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/logging"
)

const manifest = `items:
  - description: Cracked tile near the sink
    group: Kitchen
  - description: Loose handrail on the stairs
`

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("OBSREPORT_HOME", home)
	t.Setenv("OBSREPORT_STORE", "sqlite")
	config.ResetEnv()
	t.Cleanup(config.ResetEnv)

	var logs bytes.Buffer
	prev := logging.SetOutput(&logs)
	t.Cleanup(func() { logging.SetOutput(prev) })

	path := filepath.Join(home, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunJSONThenShowAndStatus(t *testing.T) {
	path := setupHome(t)

	out, err := execute(t, "run", path, "--provider", "mock", "--run-id", "run-1", "--format", "json")
	require.NoError(t, err)

	var sections []domain.Section
	require.NoError(t, json.Unmarshal([]byte(out), &sections))
	require.NotEmpty(t, sections)
	assert.Contains(t, out, "Cracked tile near the sink")
	assert.Contains(t, out, "Loose handrail on the stairs")

	shown, err := execute(t, "show", "run-1", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, shown, "# Observation report")
	assert.Contains(t, shown, "Kitchen")

	status, err := execute(t, "status", "run-1", "--json")
	require.NoError(t, err)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(status), &snap))
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Processed)
	assert.True(t, snap.Final)

	list, err := execute(t, "status", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, list, "run-1")
}

func TestRunWritesReportFile(t *testing.T) {
	path := setupHome(t)
	dest := filepath.Join(t.TempDir(), "report.txt")

	out, err := execute(t, "run", path, "--provider", "mock", "--out", dest, "--skip-summary")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Kitchen")
	assert.Contains(t, string(data), "Cracked tile near the sink")
}

func TestRunRejectsBadFlags(t *testing.T) {
	path := setupHome(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown provider", []string{"run", path, "--provider", "nope"}},
		{"unknown format", []string{"run", path, "--provider", "mock", "--format", "pdf"}},
		{"invalid batch size", []string{"run", path, "--provider", "mock", "--batch-size", "0"}},
		{"missing input", []string{"run", filepath.Join(t.TempDir(), "absent.yaml"), "--provider", "mock"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestShowMissingReport(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no report yet")
}

func TestLoadRunConfigFlagsOverrideFile(t *testing.T) {
	setupHome(t)
	file := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(file, []byte("batch_size: 9\ncall_concurrency: 2\n"), 0o644))

	cmd := runCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--config", file, "--calls", "7"}))
	opts := &runOptions{configFile: file, calls: 7}

	cfg, err := loadRunConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.BatchSize)
	assert.Equal(t, 7, cfg.CallConcurrency)
	assert.Equal(t, config.Default().BatchConcurrency, cfg.BatchConcurrency)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "obsreport "+version+"\n", out)
}

func TestDoctor(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "doctor", "--provider", "mock", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "healthy"`)
	assert.Contains(t, out, `"store"`)

	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	config.ResetEnv()
	_, err = execute(t, "doctor", "--provider", "google")
	assert.Error(t, err)
}
