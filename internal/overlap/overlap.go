// Package overlap resolves conflicts between accepted spans of the same
// category.
//
// Highlights of the same color that overlap are merged into their union.
// Highlights of different colors that overlap are resolved in favour of the
// narrower span: the wider span keeps only the parts not already claimed,
// which may split it in two. Comments may overlap freely; only exact
// duplicates are removed. Every change is reported as a Diagnostic.
package overlap

import (
	"fmt"
	"sort"

	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/span"
)

// Result is the resolved span set for one category.
type Result struct {
	// Spans is sorted by (start, end, payload) and, for highlights, free of
	// overlaps.
	Spans []span.Validated

	Diagnostics []model.Diagnostic
}

// Highlights merges same-color overlaps and truncates cross-color overlaps.
// Dropped spans in the input are ignored.
func Highlights(spans []span.Validated) Result {
	var res Result

	merged := mergeSameColor(accepted(spans), &res.Diagnostics)
	res.Spans = truncateCrossColor(merged, &res.Diagnostics)

	sortSpans(res.Spans)
	return res
}

// Comments removes exact duplicates (same start, end and text), keeping
// the earliest candidate. Dropped spans in the input are ignored.
func Comments(spans []span.Validated) Result {
	var res Result

	type key struct {
		start, end int
		text       string
	}
	first := make(map[key]int)

	for _, v := range accepted(spans) {
		k := key{v.Span.Start, v.Span.End, v.Payload}
		if idx, dup := first[k]; dup {
			res.Diagnostics = append(res.Diagnostics, diagnostic(v, model.StatusDropped, model.ReasonDuplicate, nil,
				fmt.Sprintf("duplicate of comment #%d", idx)))
			continue
		}
		first[k] = v.Index
		res.Spans = append(res.Spans, v)
	}

	sortSpans(res.Spans)
	return res
}

// mergeSameColor unions transitively overlapping spans of the same color.
// The member with the lowest input index carries the merged span.
func mergeSameColor(spans []span.Validated, diags *[]model.Diagnostic) []span.Validated {
	byColor := make(map[string][]span.Validated)
	var colors []string
	for _, v := range spans {
		if _, ok := byColor[v.Payload]; !ok {
			colors = append(colors, v.Payload)
		}
		byColor[v.Payload] = append(byColor[v.Payload], v)
	}
	sort.Strings(colors)

	var out []span.Validated
	for _, color := range colors {
		group := byColor[color]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Span.Start != group[j].Span.Start {
				return group[i].Span.Start < group[j].Span.Start
			}
			if group[i].Span.End != group[j].Span.End {
				return group[i].Span.End < group[j].Span.End
			}
			return group[i].Index < group[j].Index
		})

		for i := 0; i < len(group); {
			union := group[i].Span
			j := i + 1
			for j < len(group) && group[j].Span.Start < union.End {
				union.End = max(union.End, group[j].Span.End)
				j++
			}

			members := group[i:j]
			if len(members) == 1 {
				out = append(out, members[0])
				i = j
				continue
			}

			survivor := members[0]
			for _, m := range members[1:] {
				if m.Index < survivor.Index {
					survivor = m
				}
			}

			for _, m := range members {
				if m.Index == survivor.Index && m.Span == union {
					continue
				}
				*diags = append(*diags, diagnostic(m, model.StatusRepaired, model.ReasonMerged, &union,
					fmt.Sprintf("merged %d overlapping %s highlights", len(members), color)))
			}

			if survivor.Span != union {
				survivor.Span = union
				survivor.Status = model.StatusRepaired
			}
			out = append(out, survivor)
			i = j
		}
	}
	return out
}

// truncateCrossColor lets narrower spans claim text first; each wider span
// keeps only the unclaimed remainder of its range.
func truncateCrossColor(spans []span.Validated, diags *[]model.Diagnostic) []span.Validated {
	order := append([]span.Validated(nil), spans...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Span.Len() != b.Span.Len() {
			return a.Span.Len() < b.Span.Len()
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		return a.Index < b.Index
	})

	var (
		claimed []model.Span
		out     []span.Validated
	)
	for _, v := range order {
		pieces := subtract(v.Span, claimed)

		switch {
		case len(pieces) == 1 && pieces[0] == v.Span:
			out = append(out, v)
		case len(pieces) == 0:
			*diags = append(*diags, diagnostic(v, model.StatusDropped, model.ReasonSuperseded, nil,
				fmt.Sprintf("%s fully covered by narrower highlights of other colors", v.Span)))
		default:
			for _, p := range pieces {
				piece := v
				piece.Span = p
				piece.Status = model.StatusRepaired
				result := p
				*diags = append(*diags, diagnostic(v, model.StatusRepaired, model.ReasonTruncated, &result,
					fmt.Sprintf("%s truncated to %s by a narrower highlight", v.Span, p)))
				out = append(out, piece)
			}
		}

		claimed = insert(claimed, v.Span)
	}
	return out
}

// subtract returns the parts of s not covered by the sorted, disjoint
// intervals in claimed.
func subtract(s model.Span, claimed []model.Span) []model.Span {
	var pieces []model.Span
	cur := s.Start
	for _, c := range claimed {
		if c.End <= cur {
			continue
		}
		if c.Start >= s.End {
			break
		}
		if c.Start > cur {
			pieces = append(pieces, model.Span{Start: cur, End: c.Start})
		}
		cur = max(cur, c.End)
		if cur >= s.End {
			break
		}
	}
	if cur < s.End {
		pieces = append(pieces, model.Span{Start: cur, End: s.End})
	}
	return pieces
}

// insert adds s to the sorted, disjoint interval list, coalescing
// overlapping and touching intervals.
func insert(claimed []model.Span, s model.Span) []model.Span {
	out := make([]model.Span, 0, len(claimed)+1)
	placed := false
	for _, c := range claimed {
		switch {
		case c.End < s.Start:
			out = append(out, c)
		case s.End < c.Start:
			if !placed {
				out = append(out, s)
				placed = true
			}
			out = append(out, c)
		default:
			s.Start = min(s.Start, c.Start)
			s.End = max(s.End, c.End)
		}
	}
	if !placed {
		out = append(out, s)
	}
	return out
}

func accepted(spans []span.Validated) []span.Validated {
	out := make([]span.Validated, 0, len(spans))
	for _, v := range spans {
		if v.Status != model.StatusDropped {
			out = append(out, v)
		}
	}
	return out
}

func sortSpans(spans []span.Validated) {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		if a.Payload != b.Payload {
			return a.Payload < b.Payload
		}
		return a.Index < b.Index
	})
}

func diagnostic(v span.Validated, outcome model.Status, reason model.Reason, result *model.Span, detail string) model.Diagnostic {
	var r *model.Span
	if result != nil {
		cp := *result
		r = &cp
	}
	return model.Diagnostic{
		Category:     v.Category,
		Index:        v.Index,
		Original:     v.Original,
		OriginalText: v.Claimed,
		Outcome:      outcome,
		Reason:       reason,
		Detail:       detail,
		Result:       r,
	}
}
