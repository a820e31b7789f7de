package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnv(t *testing.T) {
	ResetEnv()

	os.Setenv("OBSREPORT_PROVIDER", "google")
	os.Setenv("OBSREPORT_STORE", "graph")
	os.Setenv("NEO4J_URI", "bolt://testhost:7687")
	defer func() {
		os.Unsetenv("OBSREPORT_PROVIDER")
		os.Unsetenv("OBSREPORT_STORE")
		os.Unsetenv("NEO4J_URI")
		ResetEnv()
	}()

	env := Env()

	assert.Equal(t, "google", env.Provider)
	assert.Equal(t, "graph", env.Store)
	assert.Equal(t, "bolt://testhost:7687", env.Neo4jURI)
}

func TestEnvDefaults(t *testing.T) {
	ResetEnv()
	os.Unsetenv("OBSREPORT_PROVIDER")
	os.Unsetenv("NEO4J_URI")
	defer ResetEnv()

	env := Env()

	assert.Equal(t, "openai", env.Provider)
	assert.Equal(t, "sqlite", env.Store)
	assert.Equal(t, "bolt://localhost:7687", env.Neo4jURI)
}

func TestEnvSingleton(t *testing.T) {
	ResetEnv()
	defer ResetEnv()

	assert.Same(t, Env(), Env())
}

func TestPathUsesHome(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("OBSREPORT_HOME", dir)
	ResetEnv()
	defer func() {
		os.Unsetenv("OBSREPORT_HOME")
		ResetEnv()
	}()

	assert.Equal(t, filepath.Join(dir, "data", "obsreport.db"), Path("data", "obsreport.db"))
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 3, cfg.BatchConcurrency)
	assert.Equal(t, 4, cfg.CallConcurrency)
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	cfg.CallConcurrency = 0
	cfg.Retry.Margin = cfg.Retry.Total

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "call_concurrency")
	assert.Contains(t, err.Error(), "margin")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch_size: 10
call_concurrency: 8
retry:
  total: 30s
  max_attempts: 2
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 8, cfg.CallConcurrency)
	assert.Equal(t, 3, cfg.BatchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Retry.Total)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Retry.Margin)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	os.Setenv("OBSREPORT_BATCH_SIZE", "7")
	os.Setenv("OBSREPORT_RETRY_TOTAL", "10s")
	defer os.Unsetenv("OBSREPORT_BATCH_SIZE")
	defer os.Unsetenv("OBSREPORT_RETRY_TOTAL")

	cfg := Default().ApplyEnv()
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Retry.Total)
}
