// Package orchestrator runs one observation report end to end: batched
// analysis under two concurrency gates, partial publishes while work
// continues, one reconciliation pass, then the final ordered, grouped,
// numbered outline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joss/obsreport/internal/analysis"
	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/gate"
	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/outline"
	"github.com/joss/obsreport/internal/progress"
	"github.com/joss/obsreport/internal/retry"
	"github.com/joss/obsreport/internal/store"
	"github.com/joss/obsreport/internal/summary"
	"github.com/joss/obsreport/pkg/llm"
)

// Deps are the collaborators a run talks to. Generator is required; the
// rest may be nil.
type Deps struct {
	Generator llm.Generator
	Snapshots store.SnapshotStore
	Artifacts store.ArtifactStore
	Context   analysis.ContextSource
	Metrics   *metrics.Metrics
}

// Orchestrator executes runs against one set of collaborators.
type Orchestrator struct {
	deps Deps

	// Callbacks
	OnBatchDone func(batch int, results []analysis.Result)
	OnSummary   func(kind summary.Kind)
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global()
	}
	return &Orchestrator{deps: deps}
}

// Run is New(deps).Run(ctx, runID, items, cfg).
func Run(ctx context.Context, runID string, items []domain.WorkItem, cfg config.RunConfig, deps Deps) ([]domain.Section, error) {
	return New(deps).Run(ctx, runID, items, cfg)
}

// accumulator is the private state of one run, touched only by the
// goroutine executing Run.
type accumulator struct {
	sections  []domain.Section // completion order
	processed int
	failed    int
	expected  int
	usage     llm.Usage
}

func (a *accumulator) add(results []analysis.Result) {
	for _, r := range results {
		a.processed++
		if r.Err != nil {
			a.failed++
		}
		a.sections = append(a.sections, r.Sections...)
		a.usage.Add(r.Usage)
	}
}

// view is the partial outline: ordered and grouped, not numbered.
func (a *accumulator) view() []domain.Section {
	return outline.Group(outline.Sequence(a.sections))
}

// Run analyzes items and returns the final outline.
//
// Invalid input is rejected with domain.ErrInvalidConfig before anything is
// published. Any later error or panic publishes a failed snapshot that keeps
// the last partial outline; errors are then returned and panics re-raised.
func (o *Orchestrator) Run(ctx context.Context, runID string, items []domain.WorkItem, cfg config.RunConfig) (sections []domain.Section, err error) {
	if err := o.validate(runID, items, cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx, "orchestrator")
	m := o.deps.Metrics
	pub := progress.New(o.deps.Snapshots, runID, len(items), m)

	rh := &logging.RecoveryHandler{
		Component: "orchestrator",
		RunID:     runID,
		OnPanic: func(rec interface{}, stack string) {
			pub.Failed(ctx, fmt.Errorf("panic: %v", rec))
			m.RecordRun(false, time.Since(start))
		},
	}
	rh.Repanic(func() {
		sections, err = o.run(ctx, runID, items, cfg, pub)
	})

	if err != nil {
		pub.Failed(ctx, err)
		m.RecordRun(false, time.Since(start))
		log.Error("run_failed", map[string]interface{}{"processed": pub.Processed(), "expected": len(items)}, err)
		return nil, err
	}
	m.RecordRun(true, time.Since(start))
	log.TimedEvent("run_completed", start, map[string]interface{}{
		"items":    len(items),
		"sections": domain.Count(sections),
	})
	return sections, nil
}

func (o *Orchestrator) validate(runID string, items []domain.WorkItem, cfg config.RunConfig) error {
	var errs []error
	if strings.TrimSpace(runID) == "" {
		errs = append(errs, errors.New("run ID is required"))
	}
	if o.deps.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return domain.ValidateItems(items)
}

func (o *Orchestrator) run(ctx context.Context, runID string, items []domain.WorkItem, cfg config.RunConfig, pub *progress.Publisher) ([]domain.Section, error) {
	log := logging.FromContext(ctx, "orchestrator")
	m := o.deps.Metrics
	pub.Started(ctx)

	calls := gate.NewCalls(cfg.CallConcurrency)
	policy := RetryPolicy(cfg.Retry)
	genOpts := llm.Options{Model: cfg.Model, Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxOutputTokens}
	proc := analysis.NewProcessor(o.deps.Generator, calls, o.deps.Context, m, analysis.Options{
		Generate: genOpts,
		Retry:    policy,
		TopK:     cfg.ContextTopK,
	})

	acc := &accumulator{expected: len(items)}
	batches := Partition(items, cfg.BatchSize)
	log.Info("run_started", map[string]interface{}{
		"items":             len(items),
		"batches":           len(batches),
		"batch_concurrency": cfg.BatchConcurrency,
		"call_concurrency":  cfg.CallConcurrency,
		"generator":         o.deps.Generator.ID(),
	})

	if err := o.analyze(ctx, proc, batches, cfg.BatchConcurrency, acc, pub); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("analysis_finished", map[string]interface{}{
		"processed":     acc.processed,
		"failed":        acc.failed,
		"sections":      len(acc.sections),
		"input_tokens":  acc.usage.InputTokens,
		"output_tokens": acc.usage.OutputTokens,
	})

	sequenced := outline.Sequence(acc.sections)
	var notice *domain.Section
	if !cfg.SkipSummary && len(sequenced) > 0 {
		pub.Summarizing(ctx, outline.Group(sequenced))
		rec := summary.NewReconciler(o.deps.Generator, calls, policy, genOpts, m)
		res, err := rec.Reconcile(ctx, sequenced)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		if o.OnSummary != nil {
			o.OnSummary(res.Kind)
		}
		sequenced = outline.Sequence(res.Sections)
		notice = res.Notice
	}

	final := outline.Number(outline.Group(sequenced))
	if notice != nil {
		final = append([]domain.Section{*notice}, final...)
	}

	pub.Completed(ctx, final)
	o.storeReport(ctx, runID, len(items), final)
	return final, nil
}

// analyze fills the batch gate greedily: while a slot is free the next batch
// is admitted; when full, it waits for whichever batch finishes first.
func (o *Orchestrator) analyze(ctx context.Context, proc *analysis.Processor, batches [][]domain.WorkItem, limit int, acc *accumulator, pub *progress.Publisher) error {
	log := logging.FromContext(ctx, "orchestrator")
	bg := gate.NewBatches[[]analysis.Result](limit)
	next := 0

	for next < len(batches) || bg.Len() > 0 {
		if err := ctx.Err(); err != nil {
			bg.Drain()
			return err
		}
		if next < len(batches) && !bg.Full() {
			batch := batches[next]
			err := bg.Launch(ctx, next, func(ctx context.Context) ([]analysis.Result, error) {
				return proc.ProcessBatch(ctx, batch), nil
			})
			if err != nil {
				bg.Drain()
				return err
			}
			log.Debug("batch_admitted", map[string]interface{}{"batch": next, "items": len(batch), "in_flight": bg.Len()})
			next++
			continue
		}

		c, err := bg.Next(ctx)
		if err != nil {
			bg.Drain()
			return err
		}
		var pe *gate.PanicError
		if errors.As(c.Err, &pe) {
			bg.Drain()
			log.Error("batch_panicked", map[string]interface{}{"batch": c.ID, "stack": pe.Stack}, pe)
			panic(pe.Value)
		}
		if c.Err != nil {
			bg.Drain()
			return fmt.Errorf("batch %d: %w", c.ID, c.Err)
		}

		acc.add(c.Result)
		o.deps.Metrics.Batches.Add(1)
		if o.OnBatchDone != nil {
			o.OnBatchDone(c.ID, c.Result)
		}
		pub.Partial(ctx, acc.processed, acc.view())
	}
	return nil
}

func (o *Orchestrator) storeReport(ctx context.Context, runID string, items int, sections []domain.Section) {
	if o.deps.Artifacts == nil {
		return
	}
	report := domain.Report{RunID: runID, Sections: sections, Items: items, CreatedAt: time.Now()}
	if err := o.deps.Artifacts.PutReport(ctx, report); err != nil {
		o.deps.Metrics.RecordPublish(false)
		logging.FromContext(ctx, "orchestrator").Error("report_store_failed", nil, err)
	}
}

// Partition splits items into consecutive batches of at most size items.
func Partition(items []domain.WorkItem, size int) [][]domain.WorkItem {
	if size < 1 {
		size = 1
	}
	var out [][]domain.WorkItem
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		out = append(out, items[i:end])
	}
	return out
}

// RetryPolicy maps the configured budget onto an invoker policy.
func RetryPolicy(c config.RetryConfig) retry.Policy {
	return retry.Policy{
		Total:       c.Total,
		Margin:      c.Margin,
		MaxAttempts: c.MaxAttempts,
		BaseBackoff: c.BaseBackoff,
		PerAttempt:  c.PerAttempt,
	}
}
