package model

import "errors"

// Input and extraction errors.
// Callers use errors.Is to tell them apart; span-level anomalies are never
// reported through these errors, they become Diagnostics instead.
var (
	// ErrMalformedText is returned when the base text is empty while span
	// candidates are present. Spans over an empty text are unsatisfiable.
	ErrMalformedText = errors.New("malformed text: base text is empty but annotations were supplied")

	// ErrMalformedInput is returned when a raw extraction result is nil or
	// lacks one of its required fields (baseText, highlights, comments, or a
	// candidate's startIndex/endIndex).
	ErrMalformedInput = errors.New("malformed input")

	// ErrExtractionUnavailable is returned when the vision extractor cannot be
	// reached: transport failure, authentication failure, or timeout.
	ErrExtractionUnavailable = errors.New("extraction unavailable")

	// ErrExtractionFormat is returned when the extractor answered but the
	// response is not parseable as the expected JSON shape.
	ErrExtractionFormat = errors.New("extraction response has unexpected format")

	// ErrInvalidColor is returned by NormalizeColor for values that are not
	// #RRGGBB or #RGB hex colors.
	ErrInvalidColor = errors.New("invalid color: expected #RRGGBB")
)
