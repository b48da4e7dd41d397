package model

import (
	"fmt"
	"sort"
)

// Category identifies which annotation list a span belongs to.
type Category int

const (
	// CategoryHighlight marks marker highlights.
	CategoryHighlight Category = iota

	// CategoryComment marks handwritten comments.
	CategoryComment
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryHighlight:
		return "highlight"
	case CategoryComment:
		return "comment"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "highlight":
		*c = CategoryHighlight
	case "comment":
		*c = CategoryComment
	default:
		return fmt.Errorf("unknown category %q", text)
	}
	return nil
}

// Status is the reconciliation outcome of a single span.
type Status int

const (
	// StatusValid means the span was accepted unchanged.
	StatusValid Status = iota

	// StatusRepaired means the span was relocated, clamped, widened, merged
	// or truncated before being accepted.
	StatusRepaired

	// StatusDropped means the span could not be trusted and was discarded.
	StatusDropped
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusRepaired:
		return "repaired"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "valid":
		*s = StatusValid
	case "repaired":
		*s = StatusRepaired
	case "dropped":
		*s = StatusDropped
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Reason is a machine-readable explanation attached to a Diagnostic.
type Reason string

// Reasons recorded by the reconciliation engine.
const (
	ReasonNegativeIndex  Reason = "negative_index"
	ReasonDegenerate     Reason = "degenerate_span"
	ReasonOutOfRange     Reason = "out_of_range"
	ReasonTextMismatch   Reason = "text_mismatch"
	ReasonRelocatedExact Reason = "relocated_exact"
	ReasonRelocatedFuzzy Reason = "relocated_fuzzy"
	ReasonUnlocatable    Reason = "unlocatable"
	ReasonClamped        Reason = "clamped"
	ReasonSwapped        Reason = "swapped"
	ReasonWidened        Reason = "widened"
	ReasonMerged         Reason = "merged"
	ReasonTruncated      Reason = "truncated_by_overlap"
	ReasonSuperseded     Reason = "superseded_by_overlap"
	ReasonDuplicate      Reason = "duplicate"
	ReasonInvalidColor   Reason = "invalid_color"
	ReasonEmptyComment   Reason = "empty_comment"
)

// Diagnostic records one non-fatal anomaly and how it was resolved.
type Diagnostic struct {
	// Category is the list the candidate came from.
	Category Category `json:"category"`

	// Index is the candidate's position in its input list.
	Index int `json:"index"`

	// Original holds the candidate's indices as supplied by the extractor.
	Original Span `json:"original"`

	// OriginalText is the candidate's highlightedText or commentText.
	OriginalText string `json:"originalText,omitempty"`

	// Outcome is StatusRepaired or StatusDropped.
	Outcome Status `json:"outcome"`

	Reason Reason `json:"reason"`

	// Detail is a short human-readable explanation.
	Detail string `json:"detail,omitempty"`

	// Result is the span that was emitted, in canonical indices.
	// It is nil when the candidate was dropped.
	Result *Span `json:"result,omitempty"`
}

// String formats the diagnostic for logs and text reports.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s #%d [%d,%d) %s: %s", d.Category, d.Index, d.Original.Start, d.Original.End, d.Outcome, d.Reason)
	if d.Result != nil {
		s += fmt.Sprintf(" -> [%d,%d)", d.Result.Start, d.Result.End)
	}
	if d.Detail != "" {
		s += " (" + d.Detail + ")"
	}
	return s
}

// SortDiagnostics orders diagnostics by category, candidate index, then
// result position, giving a stable order independent of processing order.
func SortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return resultStart(a) < resultStart(b)
	})
}

func resultStart(d Diagnostic) int {
	if d.Result == nil {
		return -1
	}
	return d.Result.Start
}
