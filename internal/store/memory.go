package store

import (
	"context"
	"sync"

	"github.com/joss/obsreport/internal/domain"
)

// Memory keeps runs in process memory. Used by tests and by `run --store memory`.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]domain.Snapshot
	reports   map[string]domain.Report
	closed    bool
	writes    int
}

var _ RunStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]domain.Snapshot),
		reports:   make(map[string]domain.Report),
	}
}

func (m *Memory) PutSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.RunID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	snap.Sections = domain.CloneAll(snap.Sections)
	m.snapshots[snap.RunID] = snap
	m.writes++
	return nil
}

func (m *Memory) GetSnapshot(ctx context.Context, runID string) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	snap, ok := m.snapshots[runID]
	if !ok {
		return nil, notFound(KindSnapshot, runID)
	}
	snap.Sections = domain.CloneAll(snap.Sections)
	return &snap, nil
}

func (m *Memory) ListSnapshots(ctx context.Context, filter Filter) ([]*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]*domain.Snapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		snap.Sections = domain.CloneAll(snap.Sections)
		out = append(out, &snap)
	}
	return page(out, filter), nil
}

func (m *Memory) PutReport(ctx context.Context, report domain.Report) error {
	if report.RunID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	report.Sections = domain.CloneAll(report.Sections)
	m.reports[report.RunID] = report
	return nil
}

func (m *Memory) GetReport(ctx context.Context, runID string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	r, ok := m.reports[runID]
	if !ok {
		return nil, notFound(KindReport, runID)
	}
	r.Sections = domain.CloneAll(r.Sections)
	return &r, nil
}

// Writes is the number of accepted snapshot writes.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
