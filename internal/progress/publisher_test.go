package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/store"
)

type flakyStore struct {
	*store.Memory
	fail bool
}

func (f *flakyStore) PutSnapshot(ctx context.Context, s domain.Snapshot) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.PutSnapshot(ctx, s)
}

func sections(titles ...string) []domain.Section {
	out := make([]domain.Section, len(titles))
	for i, t := range titles {
		out[i] = domain.Section{ID: t, Title: t}
	}
	return out
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := metrics.New()
	p := New(mem, "run-1", 10, m)

	require.True(t, p.Started(ctx))
	snap, err := mem.GetSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, snap.Status)
	assert.Equal(t, 10, snap.Expected)

	require.True(t, p.Partial(ctx, 5, sections("Roof")))
	snap, _ = mem.GetSnapshot(ctx, "run-1")
	assert.Equal(t, domain.StatusRunning, snap.Status)
	assert.Equal(t, 5, snap.Processed)
	assert.Equal(t, "analyzed 5 of 10 items", snap.Message)
	assert.False(t, snap.Final)

	require.True(t, p.Summarizing(ctx, sections("Roof", "Walls")))
	snap, _ = mem.GetSnapshot(ctx, "run-1")
	assert.Equal(t, domain.StatusSummarize, snap.Status)
	assert.Equal(t, 5, snap.Processed)

	require.True(t, p.Completed(ctx, sections("Roof", "Walls")))
	snap, _ = mem.GetSnapshot(ctx, "run-1")
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.True(t, snap.Final)
	assert.Equal(t, 10, snap.Processed)
	assert.Len(t, snap.Sections, 2)

	assert.EqualValues(t, 4, m.Publishes.Load())
	assert.EqualValues(t, 0, m.PublishErrors.Load())
}

func TestPublishErrorsAreSwallowed(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), fail: true}
	m := metrics.New()
	p := New(fs, "run-1", 3, m)

	assert.False(t, p.Partial(context.Background(), 1, sections("A")))
	assert.EqualValues(t, 1, m.PublishErrors.Load())
	assert.Equal(t, "A", p.Last()[0].Title, "in-memory state advances even when the write fails")
}

func TestFailedKeepsLastSections(t *testing.T) {
	mem := store.NewMemory()
	p := New(mem, "run-1", 4, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, p.Partial(ctx, 2, sections("Roof", "Walls")))
	cancel()
	require.True(t, p.Failed(ctx, errors.New("provider exploded")))

	snap, err := mem.GetSnapshot(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, snap.Status)
	assert.Equal(t, "provider exploded", snap.Message)
	assert.Equal(t, 2, snap.Processed)
	require.Len(t, snap.Sections, 2)
	assert.Equal(t, "Roof", snap.Sections[0].Title)
}

func TestProcessedNeverRegresses(t *testing.T) {
	p := New(nil, "run-1", 10, nil)
	p.Partial(context.Background(), 7, nil)
	p.Partial(context.Background(), 4, nil)
	assert.Equal(t, 7, p.Processed())
}

func TestLastIsACopy(t *testing.T) {
	p := New(nil, "r", 1, nil)
	in := sections("A")
	p.Partial(context.Background(), 1, in)
	in[0].Title = "changed"
	got := p.Last()
	got[0].Title = "also changed"
	assert.Equal(t, "A", p.Last()[0].Title)
}
