package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/sha3"
)

// RawExtractionResult is the untrusted output of a vision extractor for one
// image. Indices in the candidates refer to BaseText as returned by the
// extractor, before canonicalization. The value is treated as immutable once
// produced.
//
// The JSON keys follow the extractor's response shape:
//
//	{"baseText": "...", "highlights": [...], "comments": [...]}
type RawExtractionResult struct {
	// BaseText is the printed text of the document as transcribed.
	BaseText string `json:"baseText"`

	// HighlightCandidates are the marker highlights the extractor reported.
	HighlightCandidates []HighlightCandidate `json:"highlights"`

	// CommentCandidates are the handwritten comments the extractor reported.
	CommentCandidates []CommentCandidate `json:"comments"`
}

// HighlightCandidate is a highlight span proposed by the extractor.
type HighlightCandidate struct {
	StartIndex      int    `json:"startIndex"`
	EndIndex        int    `json:"endIndex"`
	BackgroundColor string `json:"backgroundColor"`

	// HighlightedText is the text the extractor claims is covered by the span.
	// It is corroborating evidence only; a mismatch with the indices triggers
	// a repair rather than being trusted blindly.
	HighlightedText *string `json:"highlightedText,omitempty"`
}

// CommentCandidate is a handwritten comment proposed by the extractor.
// CommentText is authoritative; the indices are an advisory anchor.
type CommentCandidate struct {
	StartIndex  int    `json:"startIndex"`
	EndIndex    int    `json:"endIndex"`
	CommentText string `json:"commentText"`
}

// ParseRawExtraction decodes a raw extraction result from JSON.
// Missing required fields are reported as ErrMalformedInput.
func ParseRawExtraction(data []byte) (*RawExtractionResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedInput)
	}

	var raw RawExtractionResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, asMalformed(err)
	}
	return &raw, nil
}

// UnmarshalJSON decodes the extractor shape and verifies that baseText,
// highlights and comments are all present. An explicit null list is
// accepted as empty; an absent key is not.
func (r *RawExtractionResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		BaseText   *string         `json:"baseText"`
		Highlights json.RawMessage `json:"highlights"`
		Comments   json.RawMessage `json:"comments"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return asMalformed(err)
	}

	var missing []string
	if aux.BaseText == nil {
		missing = append(missing, "baseText")
	}
	if len(aux.Highlights) == 0 {
		missing = append(missing, "highlights")
	}
	if len(aux.Comments) == 0 {
		missing = append(missing, "comments")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", ErrMalformedInput, strings.Join(missing, ", "))
	}

	var highlights []HighlightCandidate
	if err := json.Unmarshal(aux.Highlights, &highlights); err != nil {
		return fmt.Errorf("highlights: %w", asMalformed(err))
	}
	var comments []CommentCandidate
	if err := json.Unmarshal(aux.Comments, &comments); err != nil {
		return fmt.Errorf("comments: %w", asMalformed(err))
	}

	r.BaseText = *aux.BaseText
	r.HighlightCandidates = highlights
	r.CommentCandidates = comments
	return nil
}

// UnmarshalJSON accepts integral numbers for the indices, including values
// such as 12.0 or "12" that language models tend to emit.
func (h *HighlightCandidate) UnmarshalJSON(data []byte) error {
	var aux struct {
		StartIndex      *json.Number `json:"startIndex"`
		EndIndex        *json.Number `json:"endIndex"`
		BackgroundColor string       `json:"backgroundColor"`
		HighlightedText *string      `json:"highlightedText"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return asMalformed(err)
	}

	start, end, err := parseIndices(aux.StartIndex, aux.EndIndex)
	if err != nil {
		return err
	}

	h.StartIndex = start
	h.EndIndex = end
	h.BackgroundColor = aux.BackgroundColor
	h.HighlightedText = aux.HighlightedText
	return nil
}

// UnmarshalJSON accepts integral numbers for the indices.
func (c *CommentCandidate) UnmarshalJSON(data []byte) error {
	var aux struct {
		StartIndex  *json.Number `json:"startIndex"`
		EndIndex    *json.Number `json:"endIndex"`
		CommentText string       `json:"commentText"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return asMalformed(err)
	}

	start, end, err := parseIndices(aux.StartIndex, aux.EndIndex)
	if err != nil {
		return err
	}

	c.StartIndex = start
	c.EndIndex = end
	c.CommentText = aux.CommentText
	return nil
}

// Fingerprint returns a SHA3-256 hex digest of the result's JSON encoding.
// Two results with the same content share a fingerprint, which lets the
// store recognise re-submitted extractions.
func (r *RawExtractionResult) Fingerprint() string {
	normalized := RawExtractionResult{
		BaseText:            r.BaseText,
		HighlightCandidates: r.HighlightCandidates,
		CommentCandidates:   r.CommentCandidates,
	}
	if normalized.HighlightCandidates == nil {
		normalized.HighlightCandidates = []HighlightCandidate{}
	}
	if normalized.CommentCandidates == nil {
		normalized.CommentCandidates = []CommentCandidate{}
	}

	data, _ := json.Marshal(normalized) //nolint:errcheck,errchkjson // only strings and ints
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SpanCount returns the total number of candidates in the result.
func (r *RawExtractionResult) SpanCount() int {
	return len(r.HighlightCandidates) + len(r.CommentCandidates)
}

func parseIndices(start, end *json.Number) (int, int, error) {
	s, err := parseIndex("startIndex", start)
	if err != nil {
		return 0, 0, err
	}
	e, err := parseIndex("endIndex", end)
	if err != nil {
		return 0, 0, err
	}
	return s, e, nil
}

func parseIndex(field string, n *json.Number) (int, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedInput, field)
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer, got %s", ErrMalformedInput, field, n.String())
	}
	return int(f), nil
}

func asMalformed(err error) error {
	if errors.Is(err, ErrMalformedInput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedInput, err)
}
