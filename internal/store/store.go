// Package store persists run snapshots and final reports.
// The engine needs only keyed overwrite; reads serve the CLI and the viewer.
package store

import (
	"context"
	"sort"

	"github.com/joss/obsreport/internal/domain"
)

// Store is the lifecycle every backend implements.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// SnapshotStore holds one progress record per run. PutSnapshot replaces the
// previous value; last write wins.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snap domain.Snapshot) error
	GetSnapshot(ctx context.Context, runID string) (*domain.Snapshot, error)
	ListSnapshots(ctx context.Context, filter Filter) ([]*domain.Snapshot, error)
}

// ArtifactStore holds the final report of each completed run.
type ArtifactStore interface {
	PutReport(ctx context.Context, report domain.Report) error
	GetReport(ctx context.Context, runID string) (*domain.Report, error)
}

// RunStore is what the CLI opens: both record kinds behind one connection.
type RunStore interface {
	Store
	SnapshotStore
	ArtifactStore
}

// Filter narrows ListSnapshots. Results are newest first.
type Filter struct {
	Limit  int           // Maximum results (0 = no limit)
	Offset int           // Skip first N results
	Status domain.Status // Only runs in this status ("" = any)
}

// DefaultFilter returns a filter with sensible defaults.
func DefaultFilter() Filter {
	return Filter{Limit: 100}
}

// WithLimit returns a copy of the filter with a new limit.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithOffset returns a copy of the filter with a new offset.
func (f Filter) WithOffset(n int) Filter {
	f.Offset = n
	return f
}

// WithStatus returns a copy of the filter restricted to one status.
func (f Filter) WithStatus(s domain.Status) Filter {
	f.Status = s
	return f
}

// CountByStatus tallies stored runs per status, for the metrics gauge.
func CountByStatus(ctx context.Context, s SnapshotStore) (map[string]float64, error) {
	snaps, err := s.ListSnapshots(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, snap := range snaps {
		out[string(snap.Status)]++
	}
	return out, nil
}

// page applies a filter to snapshots already held in memory.
func page(snaps []*domain.Snapshot, f Filter) []*domain.Snapshot {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	out := snaps[:0]
	for _, s := range snaps {
		if f.Status == "" || s.Status == f.Status {
			out = append(out, s)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
