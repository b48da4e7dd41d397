package canon

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/marginalia/internal/model"
)

// Text is a canonicalized base text together with its offset maps.
// A Text is immutable and safe for concurrent use.
type Text struct {
	raw       string
	canonical string

	// runes holds the canonical text as code points for index arithmetic.
	runes []rune

	// byteOffsets[i] is the byte offset of rune i in canonical;
	// byteOffsets[len(runes)] == len(canonical).
	byteOffsets []int

	// toCanon has one entry per raw rune plus the end position.
	toCanon []int

	// toRaw has one entry per canonical rune plus the end position.
	toRaw []int
}

// New canonicalizes raw. It never fails; use Canonicalize to also check
// that the text can hold annotations.
func New(raw string) *Text {
	mid, midToRaw, rawToMid := clean(raw)
	canonical, midToCanon, canonToMid := normalize(mid)

	t := &Text{
		raw:       raw,
		canonical: canonical,
		runes:     []rune(canonical),
	}

	t.byteOffsets = make([]int, 0, len(t.runes)+1)
	for i := range canonical {
		t.byteOffsets = append(t.byteOffsets, i)
	}
	t.byteOffsets = append(t.byteOffsets, len(canonical))

	t.toCanon = make([]int, len(rawToMid))
	for i, m := range rawToMid {
		t.toCanon[i] = midToCanon[m]
	}

	t.toRaw = make([]int, len(canonToMid))
	for i, m := range canonToMid {
		t.toRaw[i] = midToRaw[m]
	}

	return t
}

// Canonicalize canonicalizes raw and returns model.ErrMalformedText when the
// canonical text is empty but spanCount annotations are expected to refer
// to it.
func Canonicalize(raw string, spanCount int) (*Text, error) {
	t := New(raw)
	if t.Len() == 0 && spanCount > 0 {
		return nil, model.ErrMalformedText
	}
	return t, nil
}

// Fragment applies the same normalization to a short piece of text, such
// as a highlight's claimed text, so that it can be compared against the
// canonical text.
func Fragment(s string) string {
	mid, _, _ := clean(s)
	return norm.NFC.String(mid)
}

// String returns the canonical text.
func (t *Text) String() string {
	return t.canonical
}

// Raw returns the text as it was supplied.
func (t *Text) Raw() string {
	return t.raw
}

// Len returns the canonical length in runes.
func (t *Text) Len() int {
	return len(t.runes)
}

// RawLen returns the raw length in runes.
func (t *Text) RawLen() int {
	return len(t.toCanon) - 1
}

// Runes returns the canonical text as code points. The slice is shared and
// must not be modified.
func (t *Text) Runes() []rune {
	return t.runes
}

// Slice returns canonical[start:end] in rune indices. Bounds are clamped
// to the text, and an inverted range yields the empty string.
func (t *Text) Slice(start, end int) string {
	start = clamp(start, 0, len(t.runes))
	end = clamp(end, 0, len(t.runes))
	if start >= end {
		return ""
	}
	return t.canonical[t.byteOffsets[start]:t.byteOffsets[end]]
}

// ToCanonical maps a raw rune index to a canonical rune index.
//
// The map is monotonic. Indices beyond the raw text keep their distance
// past the end, so an out-of-range index stays out of range by the same
// amount; negative indices are returned unchanged.
func (t *Text) ToCanonical(rawIdx int) int {
	rawLen := t.RawLen()
	switch {
	case rawIdx < 0:
		return rawIdx
	case rawIdx > rawLen:
		return t.Len() + (rawIdx - rawLen)
	default:
		return t.toCanon[rawIdx]
	}
}

// ToRaw maps a canonical rune index back to a raw rune index. Positions
// inside a normalized sequence map to the start of the raw sequence.
func (t *Text) ToRaw(canonIdx int) int {
	switch {
	case canonIdx < 0:
		return canonIdx
	case canonIdx > t.Len():
		return t.RawLen() + (canonIdx - t.Len())
	default:
		return t.toRaw[canonIdx]
	}
}

// Occurrences returns the start index of every occurrence of sub in the
// canonical text, in ascending order. Overlapping occurrences are all
// reported. An empty sub has no occurrences.
func (t *Text) Occurrences(sub string) []int {
	if sub == "" {
		return nil
	}

	var starts []int
	offset := 0
	for offset <= len(t.canonical) {
		i := strings.Index(t.canonical[offset:], sub)
		if i < 0 {
			break
		}
		b := offset + i
		starts = append(starts, t.runeIndex(b))

		_, size := utf8.DecodeRuneInString(t.canonical[b:])
		offset = b + size
	}
	return starts
}

// runeIndex converts a byte offset at a rune boundary to a rune index.
func (t *Text) runeIndex(byteOffset int) int {
	return sort.SearchInts(t.byteOffsets, byteOffset)
}

// clean applies the artifact rules and returns the cleaned text with maps
// from cleaned rune index to raw rune index (plus end) and from raw rune
// index to cleaned rune index (plus end).
func clean(raw string) (string, []int, []int) {
	rawRunes := []rune(raw)

	var b strings.Builder
	b.Grow(len(raw))

	midToRaw := make([]int, 0, len(rawRunes)+1)
	rawToMid := make([]int, len(rawRunes)+1)

	for i, r := range rawRunes {
		rawToMid[i] = len(midToRaw)

		switch {
		case r == '\r' && i+1 < len(rawRunes) && rawRunes[i+1] == '\n':
			// Folded into the following LF.
			continue
		case r == '\r':
			r = '\n'
		case isSpaceVariant(r):
			r = ' '
		case isArtifact(r):
			continue
		}

		b.WriteRune(r)
		midToRaw = append(midToRaw, i)
	}

	rawToMid[len(rawRunes)] = len(midToRaw)
	midToRaw = append(midToRaw, len(rawRunes))

	return b.String(), midToRaw, rawToMid
}

// normalize NFC-normalizes s one normalization segment at a time and
// returns the result with maps from input rune index to output rune index
// (plus end) and from output rune index to input rune index (plus end).
//
// A segment that is already in NFC maps rune for rune. A segment that
// changes maps every input rune to the segment's first output rune, and
// every output rune to the segment's first input rune.
func normalize(s string) (string, []int, []int) {
	if norm.NFC.IsNormalString(s) {
		n := utf8.RuneCountInString(s)
		ident := make([]int, n+1)
		for i := range ident {
			ident[i] = i
		}
		return s, ident, append([]int(nil), ident...)
	}

	var b strings.Builder
	b.Grow(len(s))

	inToOut := make([]int, 0, len(s)+1)
	outToIn := make([]int, 0, len(s)+1)

	in, out := 0, 0
	for pos := 0; pos < len(s); {
		n := norm.NFC.NextBoundaryInString(s[pos:], true)
		if n <= 0 {
			n = len(s) - pos
		}
		seg := s[pos : pos+n]
		pos += n

		normalized := norm.NFC.String(seg)
		b.WriteString(normalized)

		segIn := utf8.RuneCountInString(seg)
		segOut := utf8.RuneCountInString(normalized)

		if normalized == seg {
			for k := range segIn {
				inToOut = append(inToOut, out+k)
				outToIn = append(outToIn, in+k)
			}
		} else {
			for range segIn {
				inToOut = append(inToOut, out)
			}
			for range segOut {
				outToIn = append(outToIn, in)
			}
		}

		in += segIn
		out += segOut
	}

	inToOut = append(inToOut, out)
	outToIn = append(outToIn, in)

	return b.String(), inToOut, outToIn
}

func isSpaceVariant(r rune) bool {
	switch r {
	case '\u00A0', '\u202F', '\u2007':
		return true
	default:
		return false
	}
}

func isArtifact(r rune) bool {
	switch {
	case r == '\t' || r == '\n':
		return false
	case r < 0x20, r == 0x7F, r >= 0x80 && r <= 0x9F:
		return true
	case r == '\uFEFF', r == '\u200B':
		return true
	default:
		return false
	}
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
