package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/obsreport/internal/domain"
)

// Renderer handles outline formatting.
type Renderer struct {
	pretty bool
}

// New creates a renderer; pretty enables color and box-drawing.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Auto picks pretty output when f is a terminal.
func Auto(f *os.File) *Renderer {
	return New(IsTerminal(f) && !color.NoColor)
}

// Outline formats a numbered tree, one node per line, indented by depth.
func (r *Renderer) Outline(sections []domain.Section) string {
	if len(sections) == 0 {
		return "No sections"
	}
	var sb strings.Builder
	domain.Walk(sections, func(s *domain.Section, depth int) {
		r.writeNode(&sb, s, depth)
	})
	return sb.String()
}

func (r *Renderer) writeNode(sb *strings.Builder, s *domain.Section, depth int) {
	indent := strings.Repeat("  ", depth)
	num := s.Number
	if num != "" {
		num += " "
	}

	if s.Notice {
		title := "! " + s.Title
		if r.pretty {
			title = color.RedString(title)
		}
		fmt.Fprintf(sb, "%s%s\n", indent, title)
		num = ""
		indent += "  "
	} else if s.Title != "" {
		title := s.Title
		if r.pretty {
			if s.TitleLocked {
				title = color.New(color.Bold).Sprint(title)
			} else {
				title = color.CyanString(title)
			}
			num = color.HiBlackString(num)
		}
		fmt.Fprintf(sb, "%s%s%s\n", indent, num, title)
		num = ""
		indent += "  "
	}

	for i, p := range s.Points {
		prefix := num
		if i > 0 || prefix == "" {
			prefix = "- "
		}
		fmt.Fprintf(sb, "%s%s%s\n", indent, prefix, p)
	}
	if len(s.Images) > 0 {
		refs := make([]string, len(s.Images))
		for i, img := range s.Images {
			refs[i] = img.Ref
		}
		line := "[" + strings.Join(refs, ", ") + "]"
		if r.pretty {
			line = color.HiBlackString(line)
		}
		fmt.Fprintf(sb, "%s  %s\n", indent, line)
	}
}

// Snapshot formats a run's status line followed by its outline.
func (r *Renderer) Snapshot(snap *domain.Snapshot) string {
	var sb strings.Builder
	status := fmt.Sprintf("%s %s", StatusIcon(snap.Status), snap.Status)
	if r.pretty {
		status = statusColor(snap.Status).Sprint(status)
	}
	fmt.Fprintf(&sb, "%s  %s  %s\n", snap.RunID, status, Progress(snap.Processed, snap.Expected))
	if snap.Message != "" {
		fmt.Fprintf(&sb, "%s\n", snap.Message)
	}
	if len(snap.Sections) > 0 {
		sb.WriteString("\n")
		sb.WriteString(r.Outline(snap.Sections))
	}
	return sb.String()
}

// Runs formats a list of stored runs, newest first.
func (r *Renderer) Runs(snaps []*domain.Snapshot) string {
	if len(snaps) == 0 {
		return "No runs found"
	}
	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Runs\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, s := range snaps {
		icon := StatusIcon(s.Status)
		if r.pretty {
			icon = statusColor(s.Status).Sprint(icon)
		}
		fmt.Fprintf(&sb, "%s %-36s %-12s %-14s %s\n", icon, s.RunID, s.Status,
			Progress(s.Processed, s.Expected), s.UpdatedAt.Local().Format(time.DateTime))
	}
	return sb.String()
}

func statusColor(s domain.Status) *color.Color {
	switch s {
	case domain.StatusCompleted:
		return color.New(color.FgGreen)
	case domain.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
