package span

import (
	"fmt"
	"strings"

	"github.com/nao1215/marginalia/internal/canon"
	"github.com/nao1215/marginalia/internal/model"
)

const (
	// DefaultTolerance is how far past the end of the text a highlight may
	// reach and still be considered repairable. It is also the half-width
	// of the fuzzy search window.
	DefaultTolerance = 64

	// FuzzyEditRatio bounds the fuzzy search: a match may differ from the
	// expected text by at most ceil(len(expected) * FuzzyEditRatio) edits.
	FuzzyEditRatio = 0.15
)

// Validated is a candidate span after validation and repair.
//
// When Status is not model.StatusDropped, 0 <= Span.Start < Span.End <= the
// canonical length.
type Validated struct {
	// Span is the resulting span in canonical indices.
	Span model.Span

	Category model.Category

	// Index is the candidate's position in its input list.
	Index int

	// Payload is the normalized color for highlights and the comment text
	// for comments.
	Payload string

	Status model.Status

	// Original holds the indices exactly as the extractor supplied them.
	Original model.Span

	// Claimed is the highlightedText or commentText supplied with the
	// candidate, before canonicalization.
	Claimed string

	// Diagnostic is set for repaired and dropped spans.
	Diagnostic *model.Diagnostic
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the out-of-range tolerance and fuzzy window.
// Negative values are ignored.
func WithTolerance(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.tolerance = n
		}
	}
}

// WithFuzzy enables or disables the fuzzy relocation fallback. When
// disabled, a highlight whose text does not occur verbatim is dropped.
func WithFuzzy(enabled bool) Option {
	return func(e *Engine) {
		e.fuzzy = enabled
	}
}

// Engine validates and repairs spans over one canonical text.
type Engine struct {
	text      *canon.Text
	tolerance int
	fuzzy     bool
}

// New creates an Engine for text.
func New(text *canon.Text, opts ...Option) *Engine {
	e := &Engine{
		text:      text,
		tolerance: DefaultTolerance,
		fuzzy:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Text returns the canonical text the engine works on.
func (e *Engine) Text() *canon.Text {
	return e.text
}

// Highlight validates and, if needed, repairs one highlight candidate.
// The candidate's indices are raw indices and are mapped to canonical
// indices here; its color is normalized to #RRGGBB.
func (e *Engine) Highlight(index int, c model.HighlightCandidate) Validated {
	v := Validated{
		Category: model.CategoryHighlight,
		Index:    index,
		Original: model.Span{Start: c.StartIndex, End: c.EndIndex},
	}

	var expected string
	if c.HighlightedText != nil {
		v.Claimed = *c.HighlightedText
		expected = canon.Fragment(v.Claimed)
	}

	color, err := model.NormalizeColor(c.BackgroundColor)
	if err != nil {
		v.drop(model.ReasonInvalidColor, fmt.Sprintf("background color %q is not #RRGGBB", c.BackgroundColor))
		return v
	}
	v.Payload = color

	start := e.text.ToCanonical(c.StartIndex)
	end := e.text.ToCanonical(c.EndIndex)

	cls := e.ValidateHighlight(start, end, expected)
	switch cls.Verdict {
	case VerdictValid:
		v.Span = model.Span{Start: start, End: end}
		v.Status = model.StatusValid
		return v
	case VerdictDropped:
		v.drop(cls.Reason, cls.Detail)
		return v
	case VerdictRepairable:
	}

	r := e.RepairHighlight(start, end, expected)
	if r.Dropped {
		v.drop(r.Reason, joinDetail(cls.Detail, r.Detail))
		return v
	}
	v.repair(r.Span, r.Reason, joinDetail(cls.Detail, r.Detail))
	return v
}

// Comment validates and, if needed, repairs one comment candidate.
func (e *Engine) Comment(index int, c model.CommentCandidate) Validated {
	v := Validated{
		Category: model.CategoryComment,
		Index:    index,
		Payload:  c.CommentText,
		Original: model.Span{Start: c.StartIndex, End: c.EndIndex},
		Claimed:  c.CommentText,
	}

	if strings.TrimSpace(c.CommentText) == "" {
		v.drop(model.ReasonEmptyComment, "comment text is blank")
		return v
	}

	start := e.text.ToCanonical(c.StartIndex)
	end := e.text.ToCanonical(c.EndIndex)

	cls := e.ValidateComment(start, end)
	switch cls.Verdict {
	case VerdictValid:
		v.Span = model.Span{Start: start, End: end}
		v.Status = model.StatusValid
		return v
	case VerdictDropped:
		v.drop(cls.Reason, cls.Detail)
		return v
	case VerdictRepairable:
	}

	r := e.RepairComment(start, end)
	v.repair(r.Span, r.Reason, r.Detail)
	return v
}

func (v *Validated) drop(reason model.Reason, detail string) {
	v.Status = model.StatusDropped
	v.Span = model.Span{}
	v.Diagnostic = &model.Diagnostic{
		Category:     v.Category,
		Index:        v.Index,
		Original:     v.Original,
		OriginalText: v.Claimed,
		Outcome:      model.StatusDropped,
		Reason:       reason,
		Detail:       detail,
	}
}

func (v *Validated) repair(s model.Span, reason model.Reason, detail string) {
	v.Status = model.StatusRepaired
	v.Span = s
	result := s
	v.Diagnostic = &model.Diagnostic{
		Category:     v.Category,
		Index:        v.Index,
		Original:     v.Original,
		OriginalText: v.Claimed,
		Outcome:      model.StatusRepaired,
		Reason:       reason,
		Detail:       detail,
		Result:       &result,
	}
}

func joinDetail(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "; ")
}

func spanString(start, end int) string {
	return fmt.Sprintf("[%d,%d)", start, end)
}
