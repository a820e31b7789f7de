package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joss/obsreport/pkg/llm"
)

// Mock is an offline generator. It records concurrency so tests can check
// gate bounds, and its answers can be scripted per prompt.
type Mock struct {
	// Delay simulates call latency; honours ctx cancellation.
	Delay time.Duration
	// Respond overrides the default answer.
	Respond func(ctx context.Context, p *llm.Prompt) (string, error)

	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64

	mu      sync.Mutex
	prompts []llm.Prompt
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) ID() string { return "mock" }

func (m *Mock) Generate(ctx context.Context, p *llm.Prompt, opts llm.Options) (*llm.Response, error) {
	m.calls.Add(1)
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.peak.Load()
		if n <= cur || m.peak.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, *p)
	m.mu.Unlock()

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	respond := m.Respond
	if respond == nil {
		respond = defaultResponse
	}
	text, err := respond(ctx, p)
	if err != nil {
		return nil, err
	}
	return &llm.Response{
		Content: text,
		Model:   "mock",
		Usage:   llm.Usage{InputTokens: len(p.User) / 4, OutputTokens: len(text) / 4},
	}, nil
}

// Calls is the number of Generate invocations.
func (m *Mock) Calls() int { return int(m.calls.Load()) }

// Peak is the highest number of concurrent Generate calls observed.
func (m *Mock) Peak() int { return int(m.peak.Load()) }

// Prompts returns a copy of every prompt received.
func (m *Mock) Prompts() []llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Prompt(nil), m.prompts...)
}

// defaultResponse answers analysis prompts with one section built from the
// prompt text, and summary prompts by echoing the title list back.
func defaultResponse(_ context.Context, p *llm.Prompt) (string, error) {
	if p.Kind == "summary" {
		start, end := strings.Index(p.User, "["), strings.LastIndex(p.User, "]")
		if start < 0 || end < start {
			return `{"titles":[]}`, nil
		}
		var titles []string
		if err := json.Unmarshal([]byte(p.User[start:end+1]), &titles); err != nil {
			return "", fmt.Errorf("mock: parse titles: %w", err)
		}
		for i, t := range titles {
			titles[i] = strings.TrimSpace(t)
		}
		out, _ := json.Marshal(map[string][]string{"titles": titles})
		return string(out), nil
	}

	body := p.User
	if i, j := strings.Index(body, "<observation>"), strings.Index(body, "</observation>"); i >= 0 && j > i {
		body = body[i+len("<observation>") : j]
	}
	var points []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			points = append(points, line)
		}
	}
	out, _ := json.Marshal(map[string]any{
		"sections": []map[string]any{{"title": "*Observation", "points": points}},
	})
	return string(out), nil
}

var _ llm.Generator = (*Mock)(nil)
