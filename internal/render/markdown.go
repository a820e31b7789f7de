package render

import (
	"fmt"
	"strings"

	"github.com/joss/obsreport/internal/domain"
)

// Markdown renders a report as a document: titled nodes become headings
// (depth-limited to ######), points become bullets, images become links.
func Markdown(title string, sections []domain.Section) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}
	domain.Walk(sections, func(s *domain.Section, depth int) {
		if s.Title != "" {
			level := min(depth+2, 6)
			heading := s.Title
			if s.Number != "" {
				heading = s.Number + " " + heading
			}
			if s.Notice {
				heading = "⚠ " + heading
			}
			fmt.Fprintf(&sb, "%s %s\n\n", strings.Repeat("#", level), heading)
		}
		for _, p := range s.Points {
			if s.Title == "" && s.Number != "" {
				fmt.Fprintf(&sb, "- **%s** %s\n", s.Number, p)
			} else {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
		}
		for _, img := range s.Images {
			fmt.Fprintf(&sb, "  ![%s](%s)\n", s.Number, img.Ref)
		}
		if len(s.Points) > 0 || len(s.Images) > 0 {
			if s.Title != "" {
				sb.WriteString("\n")
			}
		}
	})
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
