package span

import (
	"fmt"

	"github.com/nao1215/marginalia/internal/model"
)

// Verdict is the validator's classification of a span.
type Verdict int

const (
	// VerdictValid means the span can be used as is.
	VerdictValid Verdict = iota

	// VerdictRepairable means the span is wrong but may be fixed.
	VerdictRepairable

	// VerdictDropped means the span cannot be used.
	VerdictDropped
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictRepairable:
		return "repairable"
	case VerdictDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Classification is the result of validating one span.
type Classification struct {
	Verdict Verdict

	// Reason explains a repairable or dropped verdict.
	Reason model.Reason

	Detail string
}

// ValidateHighlight classifies a highlight span in canonical indices.
// expected is the canonicalized claimed text, or "" when none was given.
//
// Spans that are inverted, empty, negative, or that end more than the
// tolerance past the text are dropped. A span reaching into the tolerance
// band is repairable. Otherwise the span is valid when no text was claimed
// or when the covered text equals the claim exactly.
func (e *Engine) ValidateHighlight(start, end int, expected string) Classification {
	n := e.text.Len()

	switch {
	case start < 0 || end < 0:
		return dropped(model.ReasonNegativeIndex, "negative index %s", spanString(start, end))
	case start >= end:
		return dropped(model.ReasonDegenerate, "empty or inverted span %s", spanString(start, end))
	case end > n+e.tolerance:
		return dropped(model.ReasonOutOfRange, "span %s ends more than %d past text length %d", spanString(start, end), e.tolerance, n)
	case start >= n && expected == "":
		return dropped(model.ReasonOutOfRange, "span %s starts past text length %d", spanString(start, end), n)
	case end > n:
		return repairable(model.ReasonOutOfRange, "span %s ends past text length %d", spanString(start, end), n)
	case expected == "":
		return Classification{Verdict: VerdictValid}
	}

	if actual := e.text.Slice(start, end); actual != expected {
		return repairable(model.ReasonTextMismatch, "span covers %q, claimed %q", actual, expected)
	}
	return Classification{Verdict: VerdictValid}
}

// ValidateComment classifies a comment anchor in canonical indices.
// Anchors are valid when 0 <= start < end <= len and dropped only when
// they lie entirely before or entirely after the text.
func (e *Engine) ValidateComment(start, end int) Classification {
	n := e.text.Len()
	lo, hi := min(start, end), max(start, end)

	switch {
	case hi < 0:
		return dropped(model.ReasonNegativeIndex, "anchor %s lies before the text", spanString(start, end))
	case lo > n:
		return dropped(model.ReasonOutOfRange, "anchor %s lies past text length %d", spanString(start, end), n)
	case 0 <= start && start < end && end <= n:
		return Classification{Verdict: VerdictValid}
	}
	return Classification{Verdict: VerdictRepairable}
}

func dropped(reason model.Reason, format string, args ...any) Classification {
	return Classification{Verdict: VerdictDropped, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func repairable(reason model.Reason, format string, args ...any) Classification {
	return Classification{Verdict: VerdictRepairable, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
