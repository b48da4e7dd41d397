package span

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/marginalia/internal/model"
)

// Repair is the outcome of repairing one span.
type Repair struct {
	// Span is the repaired span. It is meaningless when Dropped is true.
	Span model.Span

	Reason model.Reason
	Detail string

	// Dropped is true when no trustworthy span could be found.
	Dropped bool
}

// RepairHighlight relocates a repairable highlight in canonical indices.
//
// Without claimed text the span is clamped to the text. With claimed text,
// the occurrence whose start is nearest to start wins, ties going to the
// earliest occurrence. When the text does not occur verbatim, a fuzzy
// search runs inside the tolerance window around [start, end); a unique
// best match is accepted, anything else drops the span.
func (e *Engine) RepairHighlight(start, end int, expected string) Repair {
	n := e.text.Len()

	if expected == "" {
		if start >= n {
			return Repair{Dropped: true, Reason: model.ReasonOutOfRange, Detail: "nothing left to clamp"}
		}
		clamped := model.Span{Start: start, End: min(end, n)}
		return Repair{
			Span:   clamped,
			Reason: model.ReasonClamped,
			Detail: fmt.Sprintf("clamped end to text length %d", n),
		}
	}

	m := utf8.RuneCountInString(expected)

	if occ := e.text.Occurrences(expected); len(occ) > 0 {
		best := nearest(occ, start)
		return Repair{
			Span:   model.Span{Start: best, End: best + m},
			Reason: model.ReasonRelocatedExact,
			Detail: fmt.Sprintf("%d occurrence(s) of claimed text, nearest at %d", len(occ), best),
		}
	}

	if !e.fuzzy {
		return Repair{Dropped: true, Reason: model.ReasonUnlocatable, Detail: "claimed text does not occur in text"}
	}

	match, found, detail := e.fuzzyFind([]rune(expected), start, end)
	if !found {
		return Repair{Dropped: true, Reason: model.ReasonUnlocatable, Detail: detail}
	}
	return Repair{
		Span:   match,
		Reason: model.ReasonRelocatedFuzzy,
		Detail: detail,
	}
}

// RepairComment fixes a comment anchor: inverted indices are swapped, the
// anchor is clamped into [0, len], and an empty anchor is widened to the
// enclosing or nearest word. The result is never empty.
func (e *Engine) RepairComment(start, end int) Repair {
	n := e.text.Len()

	var (
		reason model.Reason
		steps  []string
	)
	note := func(r model.Reason, step string) {
		if reason == "" {
			reason = r
		}
		steps = append(steps, step)
	}

	if start > end {
		start, end = end, start
		note(model.ReasonSwapped, "swapped inverted anchor")
	}

	if cs, ce := clamp(start, 0, n), clamp(end, 0, n); cs != start || ce != end {
		start, end = cs, ce
		note(model.ReasonClamped, "clamped anchor to "+spanString(start, end))
	}

	if start == end {
		start, end = widen(e.text.Runes(), start)
		note(model.ReasonWidened, "widened empty anchor to "+spanString(start, end))
	}

	if reason == "" {
		reason = model.ReasonClamped
	}

	return Repair{
		Span:   model.Span{Start: start, End: end},
		Reason: reason,
		Detail: strings.Join(steps, "; "),
	}
}

// nearest returns the element of the ascending slice occ closest to
// target. Ties go to the earlier element.
func nearest(occ []int, target int) int {
	best := occ[0]
	bestDist := abs(best - target)
	for _, p := range occ[1:] {
		if d := abs(p - target); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
