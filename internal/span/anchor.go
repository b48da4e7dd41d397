package span

import "unicode"

// isWordRune reports whether r can be part of a word for anchor widening.
// Apostrophes are included so that contractions stay whole.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) ||
		r == '_' || r == '\'' || r == '\u2019'
}

// widen turns the empty position pos into a non-empty span over text.
//
// If pos touches a word, the span covers that whole word. Otherwise it
// covers the nearest word, preferring the following word when both are
// equally far. Text without any word yields a single character.
// text must not be empty.
func widen(text []rune, pos int) (int, int) {
	n := len(text)
	pos = clamp(pos, 0, n)

	if (pos < n && isWordRune(text[pos])) || (pos > 0 && isWordRune(text[pos-1])) {
		return wordAround(text, pos)
	}

	left := -1
	for i := pos - 1; i >= 0; i-- {
		if isWordRune(text[i]) {
			left = i
			break
		}
	}
	right := -1
	for i := pos; i < n; i++ {
		if isWordRune(text[i]) {
			right = i
			break
		}
	}

	switch {
	case left < 0 && right < 0:
		if pos < n {
			return pos, pos + 1
		}
		return n - 1, n
	case left < 0:
		return wordAround(text, right)
	case right < 0:
		return wordAround(text, left+1)
	case right-pos <= pos-(left+1):
		return wordAround(text, right)
	default:
		return wordAround(text, left+1)
	}
}

// wordAround expands pos to the maximal run of word runes touching it.
func wordAround(text []rune, pos int) (int, int) {
	start, end := pos, pos
	for start > 0 && isWordRune(text[start-1]) {
		start--
	}
	for end < len(text) && isWordRune(text[end]) {
		end++
	}
	return start, end
}
