package domain

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// UntitledGroup is the title given to the group collecting untitled sections.
const UntitledGroup = "Untitled"

// Section is one node of the report outline. Leaves come from analysis;
// parents are created by grouping.
type Section struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	TitleLocked bool       `json:"title_locked,omitempty"`
	Points      []string   `json:"points,omitempty"`
	Images      []ImageRef `json:"images,omitempty"`
	Number      string     `json:"number,omitempty"`
	Children    []Section  `json:"children,omitempty"`
	Notice      bool       `json:"notice,omitempty"` // diagnostic node, pinned first
}

// NewSectionID returns a fresh, lexically sortable section identifier.
func NewSectionID() string {
	return ulid.Make().String()
}

// DisplayTitle is the trimmed title, or the untitled group name.
func (s Section) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return UntitledGroup
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	out := s
	if s.Points != nil {
		out.Points = append([]string(nil), s.Points...)
	}
	if s.Images != nil {
		out.Images = append([]ImageRef(nil), s.Images...)
	}
	if s.Children != nil {
		out.Children = CloneAll(s.Children)
	}
	return out
}

// CloneAll deep-copies a list of sections.
func CloneAll(in []Section) []Section {
	if in == nil {
		return nil
	}
	out := make([]Section, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Walk visits every section depth-first, passing its depth.
func Walk(sections []Section, fn func(s *Section, depth int)) {
	var visit func(list []Section, depth int)
	visit = func(list []Section, depth int) {
		for i := range list {
			fn(&list[i], depth)
			visit(list[i].Children, depth+1)
		}
	}
	visit(sections, 0)
}

// Count returns the number of sections in the tree.
func Count(sections []Section) int {
	n := 0
	Walk(sections, func(*Section, int) { n++ })
	return n
}
