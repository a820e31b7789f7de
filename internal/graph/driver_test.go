package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/internal/config"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://memgraph:7687")
	t.Setenv("NEO4J_USER", "obs")
	config.ResetEnv()
	defer config.ResetEnv()

	cfg := ConfigFromEnv()
	assert.Equal(t, "bolt://memgraph:7687", cfg.URI)
	assert.Equal(t, "obs", cfg.Username)
	assert.Equal(t, 3, cfg.Attempts)
}

func TestOpenRejectsBadScheme(t *testing.T) {
	_, err := Open(Config{URI: "ftp://nowhere"})
	assert.Error(t, err)
}

func TestOpenDoesNotDial(t *testing.T) {
	b, err := Open(Config{URI: "bolt://invalid-host:7687"})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}

func TestDialBadSchemeFailsFast(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), Config{URI: "ftp://nowhere", Attempts: 5})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDialHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, Config{URI: "bolt://127.0.0.1:1", Attempts: 3, DialTimeout: 50 * time.Millisecond})
	assert.Error(t, err)
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.True(t, Transient(errors.New("dial tcp: connection refused")))
	assert.True(t, Transient(errors.New("unexpected EOF")))
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(errors.New("Neo.ClientError.Security.Unauthorized")))
}

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"s":   "text",
		"i":   int64(7),
		"f":   float64(0.5),
		"f32": float32(0.25),
		"b":   true,
	}
	assert.Equal(t, "text", r.String("s"))
	assert.Equal(t, "", r.String("i"))
	assert.Equal(t, 7, r.Int("i"))
	assert.Equal(t, 0, r.Int("missing"))
	assert.Equal(t, 0.5, r.Float("f"))
	assert.Equal(t, 0.25, r.Float("f32"))
	assert.Equal(t, 7.0, r.Float("i"))
	assert.True(t, r.Bool("b"))
	assert.False(t, r.Bool("s"))
}
