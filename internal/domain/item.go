// Package domain defines the core entities of an observation report run.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a run is rejected before any work starts.
var ErrInvalidConfig = errors.New("invalid run configuration")

// WorkItem is one observation to be analyzed independently.
// Seq is its position in the original input list and defines canonical order.
type WorkItem struct {
	Seq         int    `json:"seq" yaml:"seq"`
	Description string `json:"description" yaml:"description"`
	Group       string `json:"group,omitempty" yaml:"group,omitempty"`
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
}

// HasImage reports whether the item carries an image reference.
func (w WorkItem) HasImage() bool {
	return strings.TrimSpace(w.Image) != ""
}

// ImageRef associates an image with the WorkItem it came from.
type ImageRef struct {
	Ref string `json:"ref"`
	Seq int    `json:"seq"`
}

// ValidateItems rejects empty input and duplicate sequence numbers.
func ValidateItems(items []WorkItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no work items", ErrInvalidConfig)
	}
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.Seq]; dup {
			return fmt.Errorf("%w: duplicate sequence number %d", ErrInvalidConfig, it.Seq)
		}
		seen[it.Seq] = struct{}{}
	}
	return nil
}
