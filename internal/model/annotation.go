package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Span is a half-open character range [Start, End) over a text.
type Span struct {
	Start int `json:"startIndex"`
	End   int `json:"endIndex"`
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsEmpty reports whether the span covers no characters.
func (s Span) IsEmpty() bool {
	return s.End <= s.Start
}

// Overlaps reports whether the two spans share at least one character.
// Touching spans such as [0,3) and [3,5) do not overlap.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely inside s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Less orders spans by start index, then end index.
func (s Span) Less(o Span) bool {
	if s.Start != o.Start {
		return s.Start < o.Start
	}
	return s.End < o.End
}

// String formats the span as [start,end).
func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Highlight is a reconciled marker highlight over the canonical text.
type Highlight struct {
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`

	// BackgroundColor is always "#RRGGBB" with uppercase hex digits.
	BackgroundColor string `json:"backgroundColor"`
}

// Span returns the highlight's character range.
func (h Highlight) Span() Span {
	return Span{Start: h.StartIndex, End: h.EndIndex}
}

// Comment is a reconciled handwritten comment anchored to the canonical text.
type Comment struct {
	StartIndex  int    `json:"startIndex"`
	EndIndex    int    `json:"endIndex"`
	CommentText string `json:"commentText"`
}

// Span returns the comment's anchor range.
func (c Comment) Span() Span {
	return Span{Start: c.StartIndex, End: c.EndIndex}
}

// DocumentAnnotation is the validated annotation set for one document.
//
// Both lists are sorted ascending by (StartIndex, EndIndex) and use indices
// into BaseText. Highlights never overlap each other; comments may overlap
// each other and any highlight.
type DocumentAnnotation struct {
	BaseText   string      `json:"baseText"`
	Highlights []Highlight `json:"highlights"`
	Comments   []Comment   `json:"comments"`
}

// MarshalJSON writes empty lists as [] rather than null so that the wire
// format always carries all three keys with their documented types.
func (a DocumentAnnotation) MarshalJSON() ([]byte, error) {
	type wire DocumentAnnotation
	w := wire(a)
	if w.Highlights == nil {
		w.Highlights = []Highlight{}
	}
	if w.Comments == nil {
		w.Comments = []Comment{}
	}
	return json.Marshal(w)
}

// SortHighlights sorts highlights by (StartIndex, EndIndex, BackgroundColor).
func SortHighlights(hs []Highlight) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i], hs[j]
		if a.StartIndex != b.StartIndex {
			return a.StartIndex < b.StartIndex
		}
		if a.EndIndex != b.EndIndex {
			return a.EndIndex < b.EndIndex
		}
		return a.BackgroundColor < b.BackgroundColor
	})
}

// SortComments sorts comments by (StartIndex, EndIndex, CommentText).
func SortComments(cs []Comment) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.StartIndex != b.StartIndex {
			return a.StartIndex < b.StartIndex
		}
		if a.EndIndex != b.EndIndex {
			return a.EndIndex < b.EndIndex
		}
		return a.CommentText < b.CommentText
	})
}
