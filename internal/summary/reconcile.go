package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joss/obsreport/internal/analysis"
	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/gate"
	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/retry"
	"github.com/joss/obsreport/pkg/llm"
)

// NoticeTitle heads the diagnostic section added when reconciliation fails.
const NoticeTitle = "Summary reconciliation failed"

const maxRawInNotice = 2000

const systemInstructions = `You normalize section titles of an observation report.
The user message is a JSON array of titles, one per section, in report order; duplicates are expected.
Answer with JSON only, either:
{"titles":[...]} with exactly one title per input position, in the same order, merging near-duplicates to one wording; or
{"sections":[{"title":"...","points":["..."],"items":[input positions]}]} when the report needs restructuring.`

// Result is the reconciled list plus the diagnostic node, if one was made.
type Result struct {
	Kind     Kind
	Sections []domain.Section
	Notice   *domain.Section
}

// Reconciler issues the summary call. One Reconciler serves one run.
type Reconciler struct {
	gen     llm.Generator
	calls   *gate.Calls
	policy  retry.Policy
	opts    llm.Options
	metrics *metrics.Metrics
}

func NewReconciler(gen llm.Generator, calls *gate.Calls, policy retry.Policy, opts llm.Options, m *metrics.Metrics) *Reconciler {
	if m == nil {
		m = metrics.New()
	}
	return &Reconciler{gen: gen, calls: calls, policy: policy, opts: opts, metrics: m}
}

// Reconcile sends every section title and merges the answer. Only caller
// cancellation is returned as an error; every other failure becomes a
// notice so the run still completes with its analyzed sections.
func (r *Reconciler) Reconcile(ctx context.Context, sections []domain.Section) (Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx, "summary")
	if len(sections) == 0 {
		return Result{Kind: Titles}, nil
	}

	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	payload, _ := json.Marshal(titles)
	prompt := &llm.Prompt{Kind: "summary", System: systemInstructions, User: string(payload)}

	raw, err := r.call(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		log.Warn("summary_call_failed", map[string]interface{}{"sections": len(sections)}, err)
		o := Outcome{Kind: Unrecognized, Reason: fmt.Sprintf("summary call failed: %v", err)}
		return Apply(sections, o), nil
	}

	o := Parse(raw, len(sections))
	res := Apply(sections, o)
	extra := map[string]interface{}{"kind": o.Kind.String(), "sections": len(sections)}
	if o.Kind == Unrecognized {
		extra["reason"] = o.Reason
		log.Warn("summary_unrecognized", extra, nil)
	} else {
		log.TimedEvent("summary_reconciled", start, extra)
	}
	return res, nil
}

func (r *Reconciler) call(ctx context.Context, prompt *llm.Prompt) (string, error) {
	if err := r.calls.Acquire(ctx); err != nil {
		return "", err
	}
	r.metrics.CallsInFlight.Add(1)
	defer func() {
		r.metrics.CallsInFlight.Add(-1)
		r.calls.Release()
	}()

	policy := r.policy
	policy.OnRetry = func(int, time.Duration, error) { r.metrics.Retries.Add(1) }
	resp, err := retry.Do(ctx, policy, func(actx context.Context) (*llm.Response, error) {
		resp, err := r.gen.Generate(actx, prompt, r.opts)
		r.metrics.RecordCall("summary", err == nil)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	r.metrics.RecordUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.Content, nil
}

// Apply merges a parsed outcome into sections and returns a new list.
//   - Titles: zipped onto sections by position; locked titles are kept.
//   - Tree: adopted wholesale, inheriting images through Node.Items.
//   - Unrecognized: sections unchanged plus a Notice describing the failure.
func Apply(sections []domain.Section, o Outcome) Result {
	switch o.Kind {
	case Titles:
		out := domain.CloneAll(sections)
		for i := range out {
			if out[i].TitleLocked {
				continue
			}
			if t := analysis.NormalizeTitle(o.Titles[i]); t != "" {
				out[i].Title = t
			}
		}
		return Result{Kind: Titles, Sections: out}
	case Tree:
		return Result{Kind: Tree, Sections: buildTree(o.Tree, sections)}
	default:
		return Result{Kind: Unrecognized, Sections: domain.CloneAll(sections), Notice: noticeFor(o)}
	}
}

func buildTree(nodes []Node, originals []domain.Section) []domain.Section {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]domain.Section, 0, len(nodes))
	for _, n := range nodes {
		s := domain.Section{
			ID:       domain.NewSectionID(),
			Title:    analysis.NormalizeTitle(n.Title),
			Children: buildTree(n.Children, originals),
		}
		for _, p := range n.Points {
			if p = strings.TrimSpace(p); p != "" {
				s.Points = append(s.Points, p)
			}
		}
		for _, idx := range n.Items {
			if idx < 0 || idx >= len(originals) {
				continue
			}
			s.Images = append(s.Images, originals[idx].Images...)
			if originals[idx].TitleLocked {
				s.Title = originals[idx].Title
				s.TitleLocked = true
			}
		}
		out = append(out, s)
	}
	return out
}

func noticeFor(o Outcome) *domain.Section {
	points := []string{o.Reason}
	if raw := strings.TrimSpace(o.Raw); raw != "" {
		if len(raw) > maxRawInNotice {
			cut := maxRawInNotice
			for cut > 0 && !utf8.RuneStart(raw[cut]) {
				cut--
			}
			raw = raw[:cut] + "..."
		}
		points = append(points, "Raw response: "+raw)
	}
	return &domain.Section{
		ID:     domain.NewSectionID(),
		Title:  NoticeTitle,
		Points: points,
		Notice: true,
	}
}
