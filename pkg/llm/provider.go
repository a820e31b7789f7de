// Package llm defines the generative call contract shared by the analysis
// and summary stages and every provider client.
package llm

import (
	"context"
	"fmt"
)

// Generator turns one prompt into one assembled text response.
// Implementations may stream internally; callers only see the final text.
type Generator interface {
	ID() string
	Generate(ctx context.Context, prompt *Prompt, opts Options) (*Response, error)
}

// Prompt is a single-turn request. Kind labels the calling stage
// ("analysis", "summary") for metrics and test doubles.
type Prompt struct {
	Kind   string
	System string
	User   string
	Images []Image
}

// Options tune one generation call.
type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Usage is the token accounting reported by the provider, when available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Response is the assembled result of a generation call.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// HTTPStatus exposes the status code for retry classification.
func (e *StatusError) HTTPStatus() int { return e.Status }
