package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHandlersLIFO(t *testing.T) {
	m := NewShutdownManager(context.Background(), time.Second)
	var order []int
	for i := 1; i <= 3; i++ {
		m.RegisterSimple("h", func() { order = append(order, i) })
	}

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.ErrorIs(t, context.Cause(m.Context()), ErrShutdown)
}

func TestShutdownOnlyOnce(t *testing.T) {
	m := NewShutdownManager(context.Background(), time.Second)
	calls := 0
	m.RegisterSimple("count", func() { calls++ })

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, 1, calls)
	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	m := NewShutdownManager(context.Background(), time.Second)
	boom := errors.New("boom")
	m.Register("store", func(context.Context) error { return boom })
	m.RegisterSimple("ok", func() {})

	err := m.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "store")
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	m := NewShutdownManager(context.Background(), 20*time.Millisecond)
	ran := false
	m.RegisterSimple("late", func() { ran = true })
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.Shutdown()
	require.Error(t, err)
	assert.False(t, ran)
	assert.Contains(t, err.Error(), "late: skipped after timeout")
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := NewShutdownManager(parent, 0)
	cancel()
	assert.Error(t, m.Context().Err())
}
