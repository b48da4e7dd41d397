// Package canon normalizes extracted base text into the canonical reference
// string that every annotation index is defined against.
//
// Vision extractors return text with inconsistent line endings, stray
// control characters, non-breaking spaces and mixed Unicode normalization
// forms. Canonicalization removes these artifacts without touching visible
// words or punctuation, and records an offset map in both directions so
// that indices produced by the extractor (raw indices) can be translated to
// canonical indices, and canonical indices can be reported back against the
// raw text.
//
// All indices in this package count Unicode code points (runes), not bytes.
//
// # Normalization Rules
//
// Applied in this order:
//   - CRLF becomes LF (the CR is removed); a lone CR becomes LF
//   - NBSP, narrow NBSP and figure space become an ASCII space
//   - C0 and C1 control characters other than tab and LF are removed
//   - byte order marks and zero-width spaces are removed
//   - the result is NFC-normalized segment by segment
//
// # Usage
//
//	text, err := canon.Canonicalize(raw.BaseText, raw.SpanCount())
//	if err != nil {
//	    return err // model.ErrMalformedText
//	}
//	start := text.ToCanonical(candidate.StartIndex)
package canon
