// Package summary runs the corpus-level reduction call and merges its answer
// back into the accumulated sections.
package summary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joss/obsreport/internal/analysis"
)

// Kind tags the shape of a summary response. It is decided once, in Parse.
type Kind int

const (
	// Unrecognized covers wrong shape, wrong length, and unparseable text.
	Unrecognized Kind = iota
	// Titles is a title list matching the input length and order.
	Titles
	// Tree is a full replacement node list.
	Tree
)

func (k Kind) String() string {
	switch k {
	case Titles:
		return "titles"
	case Tree:
		return "tree"
	default:
		return "unrecognized"
	}
}

// Node is one section of a restructured tree answer. Items lists the input
// positions whose images the node inherits.
type Node struct {
	Title    string   `json:"title"`
	Points   []string `json:"points"`
	Items    []int    `json:"items,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// Outcome is the parsed summary response.
type Outcome struct {
	Kind   Kind
	Titles []string
	Tree   []Node
	Raw    string
	Reason string
}

// Parse classifies raw against the number of titles that were sent.
func Parse(raw string, expected int) Outcome {
	out := Outcome{Raw: raw}
	body := analysis.StripFences(raw)
	if body == "" {
		out.Reason = "empty response"
		return out
	}

	var titles []string
	var nodes []Node

	switch body[0] {
	case '[':
		if json.Unmarshal([]byte(body), &titles) != nil {
			titles = nil
			if err := json.Unmarshal([]byte(body), &nodes); err != nil {
				out.Reason = fmt.Sprintf("unparseable array: %v", err)
				return out
			}
		}
	case '{':
		var obj struct {
			Titles   *[]string `json:"titles"`
			Sections *[]Node   `json:"sections"`
		}
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			out.Reason = fmt.Sprintf("unparseable object: %v", err)
			return out
		}
		if obj.Titles == nil && obj.Sections == nil {
			out.Reason = "object has neither titles nor sections"
			return out
		}
		if obj.Sections != nil {
			nodes = *obj.Sections
		}
		if obj.Titles != nil {
			titles = *obj.Titles
			if titles == nil {
				titles = []string{}
			}
			// a wrong-length title list still yields to a usable tree
			if len(titles) != expected && len(nodes) > 0 {
				titles = nil
			}
		}
	default:
		out.Reason = "response is not JSON"
		return out
	}

	if titles != nil {
		if len(titles) != expected {
			out.Reason = fmt.Sprintf("got %d titles, want %d", len(titles), expected)
			return out
		}
		out.Kind = Titles
		out.Titles = titles
		return out
	}
	if len(nodes) == 0 || !validNodes(nodes) {
		out.Reason = "section list is empty or has untitled, pointless nodes"
		return out
	}
	out.Kind = Tree
	out.Tree = nodes
	return out
}

func validNodes(nodes []Node) bool {
	for _, n := range nodes {
		if strings.TrimSpace(n.Title) == "" && len(n.Points) == 0 && len(n.Children) == 0 {
			return false
		}
		if !validNodes(n.Children) {
			return false
		}
	}
	return true
}
