// Package analysis turns one work item into zero or more leaf sections by
// way of a single budgeted, gated generative call.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/gate"
	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/retry"
	"github.com/joss/obsreport/pkg/llm"
)

// ContextSource supplies reference text for a query. Implementations must
// not fail; they return fewer results instead.
type ContextSource interface {
	Retrieve(ctx context.Context, query string, topK int) []string
}

// Options configure a Processor.
type Options struct {
	Generate llm.Options
	Retry    retry.Policy
	TopK     int
}

// Result is the outcome of one item.
type Result struct {
	Seq      int
	Sections []domain.Section
	Usage    llm.Usage
	Err      error
}

// Processor analyzes work items. One Processor serves one run.
type Processor struct {
	gen       llm.Generator
	calls     *gate.Calls
	context   ContextSource
	opts      Options
	metrics   *metrics.Metrics
	loadImage func(ref string) (llm.Image, error)
}

// NewProcessor builds a processor. ctxSource and m may be nil.
func NewProcessor(gen llm.Generator, calls *gate.Calls, ctxSource ContextSource, m *metrics.Metrics, opts Options) *Processor {
	if m == nil {
		m = metrics.New()
	}
	return &Processor{
		gen:       gen,
		calls:     calls,
		context:   ctxSource,
		opts:      opts,
		metrics:   m,
		loadImage: llm.LoadImage,
	}
}

// Process analyzes one item. Remote and parse failures are reported in
// Result.Err with no sections; they never abort the caller's batch.
func (p *Processor) Process(ctx context.Context, item domain.WorkItem) Result {
	start := time.Now()
	log := logging.FromContext(ctx, "analysis")
	res := Result{Seq: item.Seq}

	prompt := &llm.Prompt{Kind: "analysis", System: systemInstructions}
	var refs []string
	if p.context != nil && p.opts.TopK > 0 {
		refs = p.context.Retrieve(ctx, item.Description, p.opts.TopK)
	}
	prompt.User = buildUserPrompt(item, refs)

	if item.HasImage() {
		img, err := p.loadImage(item.Image)
		if err != nil {
			log.Warn("image_unavailable", map[string]interface{}{"seq": item.Seq, "image": item.Image}, err)
		} else {
			prompt.Images = []llm.Image{img}
		}
	}

	resp, err := p.invoke(ctx, prompt)
	if err != nil {
		res.Err = fmt.Errorf("item %d: %w", item.Seq, err)
		p.metrics.RecordItem(false)
		if !errors.Is(err, context.Canceled) {
			log.Warn("item_failed", map[string]interface{}{"seq": item.Seq, "class": retry.Classify(err).String()}, err)
		}
		return res
	}
	res.Usage = resp.Usage
	p.metrics.RecordUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	sections, err := ParseSections(resp.Content, item)
	if err != nil {
		res.Err = fmt.Errorf("item %d: %w", item.Seq, err)
		p.metrics.RecordItem(false)
		log.Warn("item_unparseable", map[string]interface{}{"seq": item.Seq, "response_len": len(resp.Content)}, err)
		return res
	}
	res.Sections = sections
	p.metrics.RecordItem(true)
	log.TimedEvent("item_analyzed", start, map[string]interface{}{"seq": item.Seq, "sections": len(sections)})
	return res
}

// invoke holds one call slot for the whole budgeted invocation, retries included.
func (p *Processor) invoke(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	if err := p.calls.Acquire(ctx); err != nil {
		return nil, err
	}
	p.metrics.CallsInFlight.Add(1)
	defer func() {
		p.metrics.CallsInFlight.Add(-1)
		p.calls.Release()
	}()

	policy := p.opts.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		p.metrics.Retries.Add(1)
		logging.FromContext(ctx, "analysis").Debug("retry_wait", map[string]interface{}{
			"attempt": attempt, "wait_ms": wait.Milliseconds(), "error": err.Error(),
		})
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
	}

	return retry.Do(ctx, policy, func(actx context.Context) (*llm.Response, error) {
		resp, err := p.gen.Generate(actx, prompt, p.opts.Generate)
		p.metrics.RecordCall("analysis", err == nil)
		return resp, err
	})
}

// ProcessBatch analyzes items concurrently; each call still passes the call
// gate. The result order is completion order. A panic in any item is raised
// again on the calling goroutine once every item has finished.
func (p *Processor) ProcessBatch(ctx context.Context, items []domain.WorkItem) []Result {
	type outcome struct {
		res   Result
		panic any
	}
	out := make(chan outcome, len(items))
	for _, it := range items {
		go func(it domain.WorkItem) {
			defer func() {
				if r := recover(); r != nil {
					out <- outcome{res: Result{Seq: it.Seq}, panic: r}
				}
			}()
			out <- outcome{res: p.Process(ctx, it)}
		}(it)
	}

	results := make([]Result, 0, len(items))
	var raised any
	for range items {
		o := <-out
		if o.panic != nil && raised == nil {
			raised = o.panic
		}
		results = append(results, o.res)
	}
	if raised != nil {
		panic(raised)
	}
	return results
}
