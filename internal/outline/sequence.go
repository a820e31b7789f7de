// Package outline turns the flat, completion-ordered result list into the
// ordered, grouped, numbered report tree. Every function returns a new list
// and leaves its input untouched.
package outline

import (
	"math"
	"sort"

	"github.com/joss/obsreport/internal/domain"
)

// NoLead is the lead sequence of a subtree that references no image.
const NoLead = math.MaxInt

// LeadSeq is the smallest WorkItem sequence number referenced by an image
// anywhere in the section's subtree, or NoLead.
func LeadSeq(s domain.Section) int {
	lead := NoLead
	for _, img := range s.Images {
		lead = min(lead, img.Seq)
	}
	for _, c := range s.Children {
		lead = min(lead, LeadSeq(c))
	}
	return lead
}

// Sequence orders sections by lead sequence number. Equal keys keep their
// accumulated order, so the result depends only on the inputs, not on the
// order calls completed in once seq numbers are fixed.
func Sequence(sections []domain.Section) []domain.Section {
	type keyed struct {
		lead int
		s    domain.Section
	}
	ks := make([]keyed, len(sections))
	for i, s := range sections {
		ks[i] = keyed{lead: LeadSeq(s), s: s.Clone()}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].lead < ks[j].lead })

	out := make([]domain.Section, len(ks))
	for i, k := range ks {
		out[i] = k.s
	}
	return out
}
