package analysis

import (
	"fmt"
	"strings"

	"github.com/joss/obsreport/internal/domain"
)

const systemInstructions = `You are an inspector writing one section of a site observation report.
Analyze the observation (and the photo, when one is attached) and answer with JSON only:
{"sections":[{"title":"*Short heading","points":["finding","finding"]}]}
Rules:
- Prefix every title you invent with "*".
- Each point is one short finding; never merge findings into a paragraph.
- Use the reference context only when it is relevant.
- Return {"sections":[]} when there is nothing to report.`

// buildUserPrompt renders the per-item request text.
func buildUserPrompt(item domain.WorkItem, context []string) string {
	var b strings.Builder
	b.WriteString("<observation>\n")
	b.WriteString(strings.TrimSpace(item.Description))
	b.WriteString("\n</observation>\n")
	if g := strings.TrimSpace(item.Group); g != "" {
		fmt.Fprintf(&b, "\nThis observation belongs to the section %q.\n", g)
	}
	if len(context) > 0 {
		b.WriteString("\nReference context:\n")
		for _, c := range context {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(c))
		}
	}
	return b.String()
}
