// Package progress writes the externally visible snapshot of a run.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/store"
)

// failureWriteTimeout bounds the failure publish, which runs detached from
// the (usually already cancelled) run context.
const failureWriteTimeout = 5 * time.Second

// Publisher overwrites one run's snapshot. Write errors are logged and
// swallowed; a publish never fails the run.
type Publisher struct {
	store    store.SnapshotStore
	runID    string
	expected int
	metrics  *metrics.Metrics

	mu        sync.Mutex
	processed int
	last      []domain.Section
	now       func() time.Time
}

func New(s store.SnapshotStore, runID string, expected int, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.New()
	}
	return &Publisher{store: s, runID: runID, expected: expected, metrics: m, now: time.Now}
}

// Started announces the run before any work is admitted.
func (p *Publisher) Started(ctx context.Context) bool {
	return p.publish(ctx, domain.StatusStarted, fmt.Sprintf("analyzing %d items", p.expected), 0, nil, false)
}

// Partial publishes the outline accumulated so far.
func (p *Publisher) Partial(ctx context.Context, processed int, sections []domain.Section) bool {
	msg := fmt.Sprintf("analyzed %d of %d items", processed, p.expected)
	return p.publish(ctx, domain.StatusRunning, msg, processed, sections, false)
}

// Summarizing marks the start of the reconciliation pass.
func (p *Publisher) Summarizing(ctx context.Context, sections []domain.Section) bool {
	return p.publish(ctx, domain.StatusSummarize, "reconciling titles", p.Processed(), sections, false)
}

// Completed publishes the final numbered outline.
func (p *Publisher) Completed(ctx context.Context, sections []domain.Section) bool {
	return p.publish(ctx, domain.StatusCompleted, "", p.expected, sections, true)
}

// Failed records the failure status, keeping the last published outline.
// It ignores cancellation of ctx so an interrupted run still reports.
func (p *Publisher) Failed(ctx context.Context, cause error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	msg := "run failed"
	if cause != nil {
		msg = cause.Error()
	}
	p.mu.Lock()
	last, processed := p.last, p.processed
	p.mu.Unlock()
	return p.publish(ctx, domain.StatusFailed, msg, processed, last, false)
}

// Processed is the item count of the latest publish.
func (p *Publisher) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// Last returns the sections of the latest publish that carried any.
func (p *Publisher) Last() []domain.Section {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.CloneAll(p.last)
}

func (p *Publisher) publish(ctx context.Context, status domain.Status, msg string, processed int, sections []domain.Section, final bool) bool {
	log := logging.FromContext(ctx, "progress")
	p.mu.Lock()
	if processed > p.processed {
		p.processed = processed
	}
	if sections != nil {
		p.last = domain.CloneAll(sections)
	}
	snap := domain.Snapshot{
		RunID:     p.runID,
		Status:    status,
		Message:   msg,
		Processed: p.processed,
		Expected:  p.expected,
		Sections:  p.last,
		Final:     final,
		UpdatedAt: p.now(),
	}
	p.mu.Unlock()

	if p.store == nil {
		return true
	}
	err := p.store.PutSnapshot(ctx, snap)
	p.metrics.RecordPublish(err == nil)
	if err != nil {
		log.Warn("publish_failed", map[string]interface{}{
			"status":    string(status),
			"processed": snap.Processed,
		}, err)
		return false
	}
	log.Debug("published", map[string]interface{}{
		"status":    string(status),
		"processed": snap.Processed,
		"sections":  len(snap.Sections),
	})
	return true
}
