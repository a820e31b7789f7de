package store

import (
	"errors"
	"fmt"
)

// Sentinels shared by every backend.
var (
	ErrNotFound       = errors.New("not found")
	ErrClosed         = errors.New("store closed")
	ErrInvalidID      = errors.New("empty run id")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Record kinds named in NotFoundError.
const (
	KindSnapshot = "snapshot"
	KindReport   = "report"
)

// NotFoundError says which record of which run is missing. It matches
// ErrNotFound under errors.Is.
type NotFoundError struct {
	Kind  string
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s for run %q", e.Kind, e.RunID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(kind, runID string) error {
	return &NotFoundError{Kind: kind, RunID: runID}
}

// IsNotFound reports whether err means the run has no such record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
