// Package health runs readiness checks for the components a run depends on.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Component status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Overall status values.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// ComponentStatus represents health of a single component
type ComponentStatus struct {
	Status  string `json:"status"` // ok, degraded, error
	Latency int64  `json:"latency_ms,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report is the aggregated result of every check.
type Report struct {
	Status     string                     `json:"status"` // healthy, degraded, unhealthy
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Names returns the component names in sorted order.
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Components))
	for n := range r.Components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckFunc probes one component.
type CheckFunc func(ctx context.Context) ComponentStatus

// Checker runs a fixed set of named checks concurrently.
type Checker struct {
	mu      sync.Mutex
	checks  map[string]CheckFunc
	started time.Time
	timeout time.Duration
}

// NewChecker creates an empty checker. Each check gets at most timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		started: time.Now(),
		timeout: timeout,
	}
}

// Add registers a check, replacing any previous one with the same name.
func (c *Checker) Add(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Run executes every check and folds the results: any error makes the
// report unhealthy, any degraded component makes it degraded.
func (c *Checker) Run(ctx context.Context) *Report {
	c.mu.Lock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for n, fn := range c.checks {
		checks[n] = fn
	}
	c.mu.Unlock()

	report := &Report{
		Status:     Healthy,
		Uptime:     formatUptime(time.Since(c.started)),
		Components: make(map[string]ComponentStatus, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			result := check(cctx)

			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			if result.Status == StatusError {
				report.Status = Unhealthy
			} else if result.Status == StatusDegraded && report.Status == Healthy {
				report.Status = Degraded
			}
		}(name, check)
	}
	wg.Wait()
	return report
}

// Handler serves the report as JSON; unhealthy answers 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == Unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// Pinger is anything with a reachability probe (stores, graph drivers).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck times p.Ping; answers slower than slow are degraded.
func PingCheck(p Pinger, slow time.Duration) CheckFunc {
	return func(ctx context.Context) ComponentStatus {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return ComponentStatus{Status: StatusError, Latency: time.Since(start).Milliseconds(), Error: err.Error()}
		}
		latency := time.Since(start)
		status := StatusOK
		if slow > 0 && latency > slow {
			status = StatusDegraded
		}
		return ComponentStatus{Status: status, Latency: latency.Milliseconds()}
	}
}

// DirCheck verifies dir exists (creating it if needed) and is writable.
func DirCheck(dir string) CheckFunc {
	return func(ctx context.Context) ComponentStatus {
		start := time.Now()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ComponentStatus{Status: StatusError, Error: err.Error()}
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return ComponentStatus{Status: StatusError, Error: err.Error()}
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return ComponentStatus{Status: StatusOK, Latency: time.Since(start).Milliseconds()}
	}
}

// CredentialCheck reports an error when a provider needs a key it lacks.
func CredentialCheck(provider, key string) CheckFunc {
	return func(ctx context.Context) ComponentStatus {
		if provider == "mock" || key != "" {
			return ComponentStatus{Status: StatusOK}
		}
		return ComponentStatus{Status: StatusError, Error: fmt.Sprintf("no API key configured for %s", provider)}
	}
}

// FileCheck is degraded when path does not exist; used for optional inputs.
func FileCheck(path string) CheckFunc {
	return func(ctx context.Context) ComponentStatus {
		if _, err := os.Stat(filepath.Clean(path)); err != nil {
			return ComponentStatus{Status: StatusDegraded, Error: err.Error()}
		}
		return ComponentStatus{Status: StatusOK}
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
