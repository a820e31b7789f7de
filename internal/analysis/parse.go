package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joss/obsreport/internal/domain"
)

// ErrShape means the response was not the structured data we asked for.
var ErrShape = errors.New("unexpected response shape")

// EditableMarker prefixes titles the model generated itself.
const EditableMarker = "*"

type rawSection struct {
	Title  string          `json:"title"`
	Points json.RawMessage `json:"points"`
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseSections decodes an analysis response into leaf sections for item.
// Accepted shapes: {"sections":[...]}, a bare array, or a single section object.
func ParseSections(raw string, item domain.WorkItem) ([]domain.Section, error) {
	body := StripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrShape)
	}

	var list []rawSection
	switch body[0] {
	case '[':
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
	case '{':
		var wrapped struct {
			Sections *[]rawSection `json:"sections"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		if wrapped.Sections != nil {
			list = *wrapped.Sections
			break
		}
		var one rawSection
		if err := json.Unmarshal([]byte(body), &one); err != nil || (one.Title == "" && len(one.Points) == 0) {
			return nil, fmt.Errorf("%w: no sections field", ErrShape)
		}
		list = []rawSection{one}
	default:
		return nil, fmt.Errorf("%w: not JSON", ErrShape)
	}

	var out []domain.Section
	for _, rs := range list {
		s := domain.Section{
			ID:     domain.NewSectionID(),
			Title:  NormalizeTitle(rs.Title),
			Points: decodePoints(rs.Points),
		}
		if g := strings.TrimSpace(item.Group); g != "" {
			s.Title = g
			s.TitleLocked = true
		}
		if s.Title == "" && len(s.Points) == 0 {
			continue
		}
		if item.HasImage() {
			s.Images = []domain.ImageRef{{Ref: item.Image, Seq: item.Seq}}
		}
		out = append(out, s)
	}
	return out, nil
}

// NormalizeTitle trims the title and drops the editable marker.
func NormalizeTitle(t string) string {
	t = strings.TrimSpace(t)
	for strings.HasPrefix(t, EditableMarker) {
		t = strings.TrimSpace(strings.TrimPrefix(t, EditableMarker))
	}
	return t
}

// decodePoints accepts a list of strings or a single string. A string is
// split into one point per non-empty line.
func decodePoints(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var lines []string
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		lines = list
	} else {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		lines = strings.Split(one, "\n")
	}

	var points []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimLeft(l, "-•*· ")
		if l = strings.TrimSpace(l); l != "" {
			points = append(points, l)
		}
	}
	return points
}
