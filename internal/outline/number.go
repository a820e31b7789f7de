package outline

import (
	"strconv"
	"strings"

	"github.com/joss/obsreport/internal/domain"
)

// Number returns a copy of the tree with dotted numbers assigned depth-first:
// roots 1, 2, 3; their children 1.1, 1.2; and so on. Existing numbers are
// overwritten, so numbering twice yields the same result.
func Number(sections []domain.Section) []domain.Section {
	return numberLevel(sections, nil)
}

func numberLevel(list []domain.Section, prefix []string) []domain.Section {
	if list == nil {
		return nil
	}
	out := make([]domain.Section, len(list))
	for i, s := range list {
		path := append(prefix[:len(prefix):len(prefix)], strconv.Itoa(i+1))
		n := s.Clone()
		n.Number = strings.Join(path, ".")
		n.Children = numberLevel(s.Children, path)
		out[i] = n
	}
	return out
}

// Strip returns a copy of the tree with every number cleared.
func Strip(sections []domain.Section) []domain.Section {
	out := domain.CloneAll(sections)
	domain.Walk(out, func(s *domain.Section, _ int) { s.Number = "" })
	return out
}
