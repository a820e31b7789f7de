package outline

import (
	"strings"

	"github.com/joss/obsreport/internal/domain"
)

// GroupKey is the normalized title a section is grouped under.
func GroupKey(s domain.Section) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return domain.UntitledGroup
}

// Group collects sequenced sections under one parent per normalized title,
// in order of first appearance. Each member's points become one child per
// point; the member's images ride on its first child only and its ID is
// kept on that child.
func Group(sections []domain.Section) []domain.Section {
	var parents []domain.Section
	index := make(map[string]int)

	for _, s := range sections {
		key := GroupKey(s)
		i, ok := index[key]
		if !ok {
			i = len(parents)
			index[key] = i
			parents = append(parents, domain.Section{
				ID:    domain.NewSectionID(),
				Title: key,
			})
		}
		if s.TitleLocked {
			parents[i].TitleLocked = true
		}
		parents[i].Children = append(parents[i].Children, explode(s)...)
	}
	return parents
}

// explode splits one section into single-point children. A section with
// neither points nor children yields one pointless child so its images and
// ID survive. Existing children are carried over after the exploded points.
func explode(s domain.Section) []domain.Section {
	images := append([]domain.ImageRef(nil), s.Images...)
	id := s.ID
	if id == "" {
		id = domain.NewSectionID()
	}

	var out []domain.Section
	for j, p := range s.Points {
		child := domain.Section{ID: domain.NewSectionID(), Points: []string{p}}
		if j == 0 {
			child.ID = id
			child.Images = images
		}
		out = append(out, child)
	}

	carried := domain.CloneAll(s.Children)
	if len(out) == 0 && len(carried) > 0 && len(images) > 0 {
		carried[0].Images = append(images, carried[0].Images...)
	}
	out = append(out, carried...)

	if len(out) == 0 {
		out = append(out, domain.Section{ID: id, Images: images})
	}
	return out
}
