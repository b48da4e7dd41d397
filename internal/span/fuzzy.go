package span

import (
	"fmt"
	"math"
	"sort"

	"github.com/nao1215/marginalia/internal/model"
)

type fuzzyMatch struct {
	start, end int
	dist       int
}

// fuzzyFind searches for pattern inside the tolerance window around
// [start, end) allowing up to ceil(len(pattern) * FuzzyEditRatio) edits.
//
// All window positions with the lowest edit distance are collected and
// grouped by overlap. A single group is a unique match; the member whose
// length is closest to the pattern length wins, then the one starting
// nearest to start. Several disjoint groups are ambiguous and yield no
// match.
func (e *Engine) fuzzyFind(pattern []rune, start, end int) (model.Span, bool, string) {
	m := len(pattern)
	if m == 0 {
		return model.Span{}, false, "claimed text is empty"
	}

	n := e.text.Len()
	lo := clamp(start-e.tolerance, 0, n)
	hi := clamp(end+e.tolerance, 0, n)
	if lo >= hi {
		return model.Span{}, false, "claimed text not found and search window is empty"
	}

	k := int(math.Ceil(float64(m) * FuzzyEditRatio))
	window := e.text.Runes()[lo:hi]

	matches := approximateMatches(pattern, window, k)
	if len(matches) == 0 {
		return model.Span{}, false, fmt.Sprintf("no match within %d edit(s) in %s", k, spanString(lo, hi))
	}

	best := matches[0].dist
	for _, mt := range matches[1:] {
		best = min(best, mt.dist)
	}

	var top []fuzzyMatch
	for _, mt := range matches {
		if mt.dist == best {
			top = append(top, fuzzyMatch{start: mt.start + lo, end: mt.end + lo, dist: mt.dist})
		}
	}

	groups := groupOverlapping(top)
	if len(groups) > 1 {
		return model.Span{}, false, fmt.Sprintf("%d equally good matches at distance %d", len(groups), best)
	}

	pick := groups[0][0]
	for _, mt := range groups[0][1:] {
		if betterFit(mt, pick, m, start) {
			pick = mt
		}
	}

	return model.Span{Start: pick.start, End: pick.end}, true,
		fmt.Sprintf("approximate match at distance %d (limit %d)", best, k)
}

// approximateMatches returns every substring of text, identified by its end
// position, whose edit distance to pattern is at most k, together with the
// start of the optimal alignment. Positions are relative to text.
func approximateMatches(pattern, text []rune, k int) []fuzzyMatch {
	m := len(pattern)

	prev := make([]int, m+1)
	prevStart := make([]int, m+1)
	cur := make([]int, m+1)
	curStart := make([]int, m+1)

	for i := range prev {
		prev[i] = i
	}

	var out []fuzzyMatch
	for j := 1; j <= len(text); j++ {
		cur[0] = 0
		curStart[0] = j

		for i := 1; i <= m; i++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}

			d, s := prev[i-1]+cost, prevStart[i-1]
			if up := cur[i-1] + 1; up < d {
				d, s = up, curStart[i-1]
			}
			if left := prev[i] + 1; left < d {
				d, s = left, prevStart[i]
			}
			cur[i], curStart[i] = d, s
		}

		if cur[m] <= k && curStart[m] < j {
			out = append(out, fuzzyMatch{start: curStart[m], end: j, dist: cur[m]})
		}

		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}
	return out
}

// groupOverlapping partitions matches into groups of transitively
// overlapping spans.
func groupOverlapping(matches []fuzzyMatch) [][]fuzzyMatch {
	sorted := append([]fuzzyMatch(nil), matches...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end < sorted[j].end
	})

	var groups [][]fuzzyMatch
	groupEnd := -1
	for _, mt := range sorted {
		if len(groups) == 0 || mt.start >= groupEnd {
			groups = append(groups, []fuzzyMatch{mt})
			groupEnd = mt.end
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], mt)
		groupEnd = max(groupEnd, mt.end)
	}
	return groups
}

// betterFit reports whether a fits the expected length m and original
// start better than b. The sorted input order makes earlier starts win
// remaining ties.
func betterFit(a, b fuzzyMatch, m, start int) bool {
	da, db := abs((a.end-a.start)-m), abs((b.end-b.start)-m)
	if da != db {
		return da < db
	}
	sa, sb := abs(a.start-start), abs(b.start-start)
	if sa != sb {
		return sa < sb
	}
	return false
}
