package logging

import (
	"context"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID adds a run ID to context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a component logger bound to the context's run.
func FromContext(ctx context.Context, component string) *Logger {
	return New(component).WithRun(RunIDFromContext(ctx))
}
