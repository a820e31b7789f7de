// Package logging provides panic recovery with stack trace logging.
package logging

import (
	"fmt"
	"runtime/debug"
)

// RecoveryHandler handles panics with logging
type RecoveryHandler struct {
	Component string
	RunID     string
	OnPanic   func(err interface{}, stack string)
}

// NewRecoveryHandler creates a recovery handler for a component
func NewRecoveryHandler(component string) *RecoveryHandler {
	return &RecoveryHandler{
		Component: component,
	}
}

// WrapError executes fn with panic recovery, returning error on panic
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.handlePanic(rec, string(debug.Stack()))
		}
	}()
	return fn()
}

// Repanic runs fn; a panic is logged and handed to OnPanic, then raised again.
func (r *RecoveryHandler) Repanic(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.handlePanic(rec, string(debug.Stack()))
			panic(rec)
		}
	}()
	fn()
}

func (r *RecoveryHandler) handlePanic(rec interface{}, stack string) error {
	New(r.Component).WithRun(r.RunID).Error("panic_recovered", map[string]interface{}{
		"stack":     stack,
		"recovered": true,
	}, fmt.Errorf("%v", rec))

	if r.OnPanic != nil {
		r.OnPanic(rec, stack)
	}

	return fmt.Errorf("panic in %s: %v", r.Component, rec)
}
