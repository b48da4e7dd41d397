// Package span validates and repairs individual annotation spans against a
// canonical text.
//
// Every candidate span is classified as valid, repairable or dropped.
// Repairable highlights are relocated by searching the canonical text for
// the text the extractor claimed was highlighted: exact occurrences first,
// nearest to the original start, then a bounded fuzzy search around the
// original position. Repairable comments have their anchor clamped into the
// text, un-inverted, and widened to a word when empty; a comment is only
// dropped when its anchor lies entirely outside the text.
//
// Highlight text is evidence of ground truth while highlight indices are
// not, so text search is the authoritative repair path. Comment text is
// authoritative content and comment indices are only a navigation aid.
//
// Each span is processed independently, which lets callers fan the work out
// across goroutines. An Engine is read-only after construction.
package span
