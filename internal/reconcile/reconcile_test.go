package reconcile

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/marginalia/internal/model"
)

func strPtr(s string) *string { return &s }

// TestReconcileEndToEnd tests the documented example.
func TestReconcileEndToEnd(t *testing.T) {
	t.Parallel()

	raw, err := model.ParseRawExtraction([]byte(`{
		"baseText": "The cat sat.",
		"highlights": [{"startIndex": 4, "endIndex": 7, "backgroundColor": "#ffff00", "highlightedText": "cat"}],
		"comments": [{"startIndex": 8, "endIndex": 11, "commentText": "good verb"}]
	}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	res, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := json.Marshal(res.Annotation)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	want := `{"baseText":"The cat sat.","highlights":[{"startIndex":4,"endIndex":7,"backgroundColor":"#FFFF00"}],"comments":[{"startIndex":8,"endIndex":11,"commentText":"good verb"}]}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %v", res.Diagnostics)
	}
}

// TestReconcileErrors tests the fatal error cases.
func TestReconcileErrors(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()

		_, err := Reconcile(nil)
		if !errors.Is(err, model.ErrMalformedInput) {
			t.Errorf("expected ErrMalformedInput, got %v", err)
		}
	})

	t.Run("empty text with spans", func(t *testing.T) {
		t.Parallel()

		_, err := Reconcile(&model.RawExtractionResult{
			CommentCandidates: []model.CommentCandidate{{StartIndex: 0, EndIndex: 1, CommentText: "x"}},
		})
		if !errors.Is(err, model.ErrMalformedText) {
			t.Errorf("expected ErrMalformedText, got %v", err)
		}
	})

	t.Run("empty text without spans", func(t *testing.T) {
		t.Parallel()

		res, err := Reconcile(&model.RawExtractionResult{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Annotation.BaseText != "" || len(res.Annotation.Highlights) != 0 {
			t.Errorf("unexpected annotation: %+v", res.Annotation)
		}
	})
}

// TestReconcileProperties tests the documented behaviours on small inputs.
func TestReconcileProperties(t *testing.T) {
	t.Parallel()

	t.Run("nearer occurrence wins", func(t *testing.T) {
		t.Parallel()

		text := strings.Repeat("x", 10) + "the cat" + strings.Repeat("y", 183) + "the cat"
		res, err := Reconcile(&model.RawExtractionResult{
			BaseText: text,
			HighlightCandidates: []model.HighlightCandidate{
				{StartIndex: 12, EndIndex: 19, BackgroundColor: "#00ff00", HighlightedText: strPtr("the cat")},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.Highlight{{StartIndex: 10, EndIndex: 17, BackgroundColor: "#00FF00"}}
		if diff := cmp.Diff(want, res.Annotation.Highlights); diff != "" {
			t.Errorf("highlights mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("out of range dropped not crashed", func(t *testing.T) {
		t.Parallel()

		res, err := Reconcile(&model.RawExtractionResult{
			BaseText: strings.Repeat("abcde", 10),
			HighlightCandidates: []model.HighlightCandidate{
				{StartIndex: 5, EndIndex: 10000, BackgroundColor: "#FFFF00", HighlightedText: strPtr("nowhere")},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(res.Annotation.Highlights) != 0 {
			t.Errorf("expected no highlights, got %v", res.Annotation.Highlights)
		}
		if len(res.Diagnostics) != 1 || res.Diagnostics[0].Outcome != model.StatusDropped {
			t.Errorf("expected one dropped diagnostic, got %v", res.Diagnostics)
		}
	})

	t.Run("empty comment anchor widened", func(t *testing.T) {
		t.Parallel()

		text := strings.Repeat("a", 37) + " needle in the haystack"
		res, err := Reconcile(&model.RawExtractionResult{
			BaseText: text,
			CommentCandidates: []model.CommentCandidate{
				{StartIndex: 40, EndIndex: 40, CommentText: "needs citation"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.Comment{{StartIndex: 38, EndIndex: 44, CommentText: "needs citation"}}
		if diff := cmp.Diff(want, res.Annotation.Comments); diff != "" {
			t.Errorf("comments mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("claimed text holds after repair", func(t *testing.T) {
		t.Parallel()

		text := "Alpha beta gamma delta. Beta gamma again."
		claims := []string{"beta", "gamma delta", "Beta gamma", "again", "Alpha"}

		for i, claim := range claims {
			res, err := Reconcile(&model.RawExtractionResult{
				BaseText: text,
				HighlightCandidates: []model.HighlightCandidate{
					{StartIndex: i * 3, EndIndex: i*3 + 4, BackgroundColor: "#123456", HighlightedText: strPtr(claim)},
				},
			}, WithFuzzy(false))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Annotation.Highlights) != 1 {
				t.Fatalf("claim %q: expected 1 highlight, got %d", claim, len(res.Annotation.Highlights))
			}
			h := res.Annotation.Highlights[0]
			if got := res.Text.Slice(h.StartIndex, h.EndIndex); got != claim {
				t.Errorf("claim %q: highlight covers %q", claim, got)
			}
		}
	})

	t.Run("canonicalized text is returned", func(t *testing.T) {
		t.Parallel()

		res, err := Reconcile(&model.RawExtractionResult{
			BaseText: "line one\r\nline two",
			HighlightCandidates: []model.HighlightCandidate{
				{StartIndex: 10, EndIndex: 18, BackgroundColor: "#ff0", HighlightedText: strPtr("line two")},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Annotation.BaseText != "line one\nline two" {
			t.Errorf("baseText = %q", res.Annotation.BaseText)
		}
		want := []model.Highlight{{StartIndex: 9, EndIndex: 17, BackgroundColor: "#FFFF00"}}
		if diff := cmp.Diff(want, res.Annotation.Highlights); diff != "" {
			t.Errorf("highlights mismatch (-want +got):\n%s", diff)
		}
	})
}

var colorPattern = regexp.MustCompile(`^#[0-9A-F]{6}$`)

// randomRaw builds a noisy extraction result from a fixed seed.
func randomRaw(seed uint64) *model.RawExtractionResult {
	r := rand.New(rand.NewPCG(seed, seed*7+1))
	words := []string{"the", "cat", "sat", "on", "mat", "na\u00efve", "caf\u00e9", "\u00fcber", "a", "dog", "ran"}
	colors := []string{"#ffff00", "#00FF00", "fa0", "#FF00FF", "purple", "#ABCDEF"}

	var b strings.Builder
	for i := range 60 {
		if i > 0 {
			if r.IntN(10) == 0 {
				b.WriteString("\r\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(words[r.IntN(len(words))])
	}
	text := b.String()
	runes := []rune(text)
	n := len(runes)

	raw := &model.RawExtractionResult{BaseText: text}
	for range 25 {
		s := r.IntN(n+40) - 5
		e := s + r.IntN(20) - 2
		c := model.HighlightCandidate{StartIndex: s, EndIndex: e, BackgroundColor: colors[r.IntN(len(colors))]}
		switch r.IntN(3) {
		case 0:
			if s >= 0 && e <= n && s < e {
				claim := string(runes[s:e])
				c.HighlightedText = &claim
			}
		case 1:
			claim := words[r.IntN(len(words))]
			c.HighlightedText = &claim
		}
		raw.HighlightCandidates = append(raw.HighlightCandidates, c)
	}
	for range 15 {
		s := r.IntN(n+40) - 20
		e := s + r.IntN(30) - 10
		raw.CommentCandidates = append(raw.CommentCandidates, model.CommentCandidate{
			StartIndex: s, EndIndex: e, CommentText: words[r.IntN(len(words))],
		})
	}
	return raw
}

func checkInvariants(t *testing.T, res *Result) {
	t.Helper()

	n := utf8.RuneCountInString(res.Annotation.BaseText)

	for i, h := range res.Annotation.Highlights {
		if !(0 <= h.StartIndex && h.StartIndex < h.EndIndex && h.EndIndex <= n) {
			t.Errorf("highlight %d out of bounds: %+v (len %d)", i, h, n)
		}
		if !colorPattern.MatchString(h.BackgroundColor) {
			t.Errorf("highlight %d has color %q", i, h.BackgroundColor)
		}
		if i > 0 {
			prev := res.Annotation.Highlights[i-1]
			if prev.Span().Overlaps(h.Span()) {
				t.Errorf("highlights %d and %d overlap: %+v %+v", i-1, i, prev, h)
			}
			if h.Span().Less(prev.Span()) {
				t.Errorf("highlights %d and %d out of order", i-1, i)
			}
		}
	}

	for i, c := range res.Annotation.Comments {
		if !(0 <= c.StartIndex && c.StartIndex < c.EndIndex && c.EndIndex <= n) {
			t.Errorf("comment %d out of bounds: %+v (len %d)", i, c, n)
		}
		if i > 0 && c.Span().Less(res.Annotation.Comments[i-1].Span()) {
			t.Errorf("comments %d and %d out of order", i-1, i)
		}
	}
}

// TestReconcileInvariants tests output invariants over noisy inputs.
func TestReconcileInvariants(t *testing.T) {
	t.Parallel()

	for seed := range uint64(30) {
		raw := randomRaw(seed)

		res, err := Reconcile(raw)
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}
		checkInvariants(t, res)
	}
}

// TestReconcileDeterministic tests idempotence and worker independence.
func TestReconcileDeterministic(t *testing.T) {
	t.Parallel()

	for seed := range uint64(10) {
		raw := randomRaw(seed)

		first, err := Reconcile(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := Reconcile(raw, WithWorkers(8))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		a, _ := json.Marshal(first)  //nolint:errchkjson // test
		b, _ := json.Marshal(second) //nolint:errchkjson // test
		if string(a) != string(b) {
			t.Errorf("seed %d: output differs between runs", seed)
		}
	}
}

// TestReconcileFixedPoint tests that reconciled output reconciles to itself.
func TestReconcileFixedPoint(t *testing.T) {
	t.Parallel()

	for seed := range uint64(10) {
		res, err := Reconcile(randomRaw(seed))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		again := &model.RawExtractionResult{BaseText: res.Annotation.BaseText}
		for _, h := range res.Annotation.Highlights {
			again.HighlightCandidates = append(again.HighlightCandidates, model.HighlightCandidate{
				StartIndex: h.StartIndex, EndIndex: h.EndIndex, BackgroundColor: h.BackgroundColor,
			})
		}
		for _, c := range res.Annotation.Comments {
			again.CommentCandidates = append(again.CommentCandidates, model.CommentCandidate{
				StartIndex: c.StartIndex, EndIndex: c.EndIndex, CommentText: c.CommentText,
			})
		}

		res2, err := Reconcile(again)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(res.Annotation, res2.Annotation); diff != "" {
			t.Errorf("seed %d: second pass changed the annotation (-first +second):\n%s", seed, diff)
		}
		if len(res2.Diagnostics) != 0 {
			t.Errorf("seed %d: second pass produced diagnostics: %v", seed, res2.Diagnostics)
		}
	}
}
