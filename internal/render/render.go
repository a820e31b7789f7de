// Package render formats outlines and run state for the terminal and for
// Markdown export. Separates presentation from the engine.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/joss/obsreport/internal/domain"
)

// Writer wraps an io.Writer with formatting utilities.
type Writer struct {
	out io.Writer
}

// NewWriter creates a Writer that writes to the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Header writes a header line.
func (w *Writer) Header(title string, args ...any) {
	if len(args) > 0 {
		title = fmt.Sprintf(title, args...)
	}
	fmt.Fprintln(w.out, strings.ToUpper(title))
	fmt.Fprintln(w.out)
}

// Item writes an indented item line.
func (w *Writer) Item(format string, args ...any) {
	fmt.Fprintf(w.out, "  "+format+"\n", args...)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// StatusIcon returns the icon for a run status.
func StatusIcon(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	case domain.StatusSummarize:
		return "◐"
	case domain.StatusRunning:
		return "○"
	default:
		return "•"
	}
}

// Progress formats processed/expected with a percentage.
func Progress(processed, expected int) string {
	if expected <= 0 {
		return fmt.Sprintf("%d", processed)
	}
	return fmt.Sprintf("%d/%d (%d%%)", processed, expected, processed*100/expected)
}

// Truncate shortens s to n runes with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
