// Package metrics provides run counters and a Prometheus text endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters for report runs.
type Metrics struct {
	Runs        atomic.Int64
	RunFailures atomic.Int64

	Items        atomic.Int64
	ItemFailures atomic.Int64
	Batches      atomic.Int64

	// Remote calls, one per attempt
	AnalysisCalls atomic.Int64
	SummaryCalls  atomic.Int64
	CallErrors    atomic.Int64
	Retries       atomic.Int64

	Publishes     atomic.Int64
	PublishErrors atomic.Int64

	InputTokens  atomic.Int64
	OutputTokens atomic.Int64

	CallsInFlight     atomic.Int64
	LastRunDurationMs atomic.Int64

	startTime time.Time

	mu     sync.Mutex
	gauges []labeledGauge
}

type labeledGauge struct {
	name, help, label string
	fn                func() map[string]float64
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// New returns an empty metrics set.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// RecordCall records one remote attempt of the given kind ("analysis" or "summary").
func (m *Metrics) RecordCall(kind string, success bool) {
	if kind == "summary" {
		m.SummaryCalls.Add(1)
	} else {
		m.AnalysisCalls.Add(1)
	}
	if !success {
		m.CallErrors.Add(1)
	}
}

// RecordItem records one processed work item.
func (m *Metrics) RecordItem(success bool) {
	m.Items.Add(1)
	if !success {
		m.ItemFailures.Add(1)
	}
}

// RecordPublish records a snapshot write.
func (m *Metrics) RecordPublish(success bool) {
	m.Publishes.Add(1)
	if !success {
		m.PublishErrors.Add(1)
	}
}

// RecordUsage adds provider-reported token counts.
func (m *Metrics) RecordUsage(input, output int) {
	m.InputTokens.Add(int64(input))
	m.OutputTokens.Add(int64(output))
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(success bool, duration time.Duration) {
	m.Runs.Add(1)
	if !success {
		m.RunFailures.Add(1)
	}
	m.LastRunDurationMs.Store(duration.Milliseconds())
}

// RegisterGaugeVec adds a gauge whose labeled values are computed per scrape.
func (m *Metrics) RegisterGaugeVec(name, help, label string, fn func() map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, labeledGauge{name: name, help: help, label: label, fn: fn})
}

// Handler returns an HTTP handler for /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP obsreport_uptime_seconds Time since the process started\n")
		fmt.Fprintf(w, "# TYPE obsreport_uptime_seconds gauge\n")
		fmt.Fprintf(w, "obsreport_uptime_seconds %.2f\n\n", time.Since(m.startTime).Seconds())

		counters := []struct {
			name, help string
			v          *atomic.Int64
		}{
			{"obsreport_runs_total", "Total report runs finished", &m.Runs},
			{"obsreport_run_failures_total", "Total report runs that failed", &m.RunFailures},
			{"obsreport_items_total", "Total work items processed", &m.Items},
			{"obsreport_item_failures_total", "Total work items that yielded no result", &m.ItemFailures},
			{"obsreport_batches_total", "Total batches completed", &m.Batches},
			{"obsreport_analysis_calls_total", "Total analysis call attempts", &m.AnalysisCalls},
			{"obsreport_summary_calls_total", "Total summary call attempts", &m.SummaryCalls},
			{"obsreport_call_errors_total", "Total failed call attempts", &m.CallErrors},
			{"obsreport_retries_total", "Total retry waits", &m.Retries},
			{"obsreport_publishes_total", "Total snapshot writes", &m.Publishes},
			{"obsreport_publish_errors_total", "Total failed snapshot writes", &m.PublishErrors},
			{"obsreport_input_tokens_total", "Total provider input tokens", &m.InputTokens},
			{"obsreport_output_tokens_total", "Total provider output tokens", &m.OutputTokens},
		}
		for _, c := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
			fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
			fmt.Fprintf(w, "%s %d\n\n", c.name, c.v.Load())
		}

		fmt.Fprintf(w, "# HELP obsreport_calls_in_flight Remote calls currently holding a call slot\n")
		fmt.Fprintf(w, "# TYPE obsreport_calls_in_flight gauge\n")
		fmt.Fprintf(w, "obsreport_calls_in_flight %d\n\n", m.CallsInFlight.Load())

		fmt.Fprintf(w, "# HELP obsreport_last_run_duration_ms Duration of the last finished run\n")
		fmt.Fprintf(w, "# TYPE obsreport_last_run_duration_ms gauge\n")
		fmt.Fprintf(w, "obsreport_last_run_duration_ms %d\n", m.LastRunDurationMs.Load())

		m.mu.Lock()
		gauges := append([]labeledGauge(nil), m.gauges...)
		m.mu.Unlock()
		for _, g := range gauges {
			values := g.fn()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(w, "\n# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)
			for _, k := range keys {
				fmt.Fprintf(w, "%s{%s=%q} %g\n", g.name, g.label, k, values[k])
			}
		}
	}
}

// Server wraps the metrics HTTP server
type Server struct {
	srv *http.Server
	mux *http.ServeMux
	ln  net.Listener
}

// NewServer creates a metrics server for m on addr (":9090").
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		mux: mux,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handle adds a route. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start binds the listener and serves in background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_serve_failed", map[string]interface{}{"addr": s.srv.Addr}, err)
		}
	}()
	return nil
}

// Addr is the bound address, useful when started on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
