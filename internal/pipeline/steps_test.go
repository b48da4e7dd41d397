package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
)

// fakeExtractor returns a fixed result or error.
type fakeExtractor struct {
	raw *model.RawExtractionResult
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*model.RawExtractionResult, error) {
	return f.raw, f.err
}

func (f *fakeExtractor) Config() extract.Config {
	return extract.Config{Strategy: extract.StrategySegmented, Model: "test-model"}
}

func catRaw() *model.RawExtractionResult {
	cat := "cat"
	return &model.RawExtractionResult{
		BaseText: "The cat sat.",
		HighlightCandidates: []model.HighlightCandidate{
			{StartIndex: 4, EndIndex: 7, BackgroundColor: "#ffff00", HighlightedText: &cat},
		},
		CommentCandidates: []model.CommentCandidate{
			{StartIndex: 8, EndIndex: 8, CommentText: "good verb"},
		},
	}
}

// TestImageInfoStep tests image metadata collection.
func TestImageInfoStep(t *testing.T) {
	t.Parallel()

	t.Run("Name returns correct value", func(t *testing.T) {
		t.Parallel()

		if got := NewImageInfoStep().Name(); got != "image_info" {
			t.Errorf("expected image_info, got %q", got)
		}
	})

	t.Run("records local file info", func(t *testing.T) {
		t.Parallel()

		name := filepath.Join(t.TempDir(), "page.gif")
		if err := os.WriteFile(name, []byte("GIF89a"), 0o600); err != nil {
			t.Fatal(err)
		}

		report := model.NewDocumentReport(name)
		if err := NewImageInfoStep().Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Image == nil || report.Image.Source != extract.SourceFile || report.Image.MIMEType != "image/gif" {
			t.Errorf("unexpected image info: %+v", report.Image)
		}
	})

	t.Run("unreadable image is not fatal", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport(filepath.Join(t.TempDir(), "missing.png"))
		if err := NewImageInfoStep().Do(t.Context(), report); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if report.Image != nil {
			t.Errorf("expected no image info, got %+v", report.Image)
		}
	})
}

// TestExtractStep tests the extraction step.
func TestExtractStep(t *testing.T) {
	t.Parallel()

	t.Run("stores raw result and extractor settings", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport("page.png")
		step := NewExtractStep(&fakeExtractor{raw: catRaw()})

		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Raw == nil || report.Raw.BaseText != "The cat sat." {
			t.Errorf("unexpected raw result: %+v", report.Raw)
		}
		if report.Strategy != "segmented" || report.Model != "test-model" {
			t.Errorf("unexpected strategy/model: %q/%q", report.Strategy, report.Model)
		}
	})

	t.Run("failure marks extraction_failed", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport("page.png")
		step := NewExtractStep(&fakeExtractor{err: fmt.Errorf("%w: refused", model.ErrExtractionUnavailable)})

		err := step.Do(t.Context(), report)
		if !errors.Is(err, model.ErrExtractionUnavailable) {
			t.Errorf("expected ErrExtractionUnavailable, got %v", err)
		}
		if report.Status != model.DocumentExtractionFailed {
			t.Errorf("expected extraction_failed, got %s", report.Status)
		}
	})

	t.Run("cancellation marks cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		report := model.NewDocumentReport("page.png")
		step := NewExtractStep(&fakeExtractor{err: fmt.Errorf("%w: %w", model.ErrExtractionUnavailable, context.Canceled)})

		_ = step.Do(ctx, report) //nolint:errcheck // status is checked
		if report.Status != model.DocumentCancelled || !report.TimedOut {
			t.Errorf("expected cancelled report, got status=%s timed_out=%v", report.Status, report.TimedOut)
		}
	})
}

// TestReconcileStep tests the reconciliation step.
func TestReconcileStep(t *testing.T) {
	t.Parallel()

	t.Run("requires an extraction result", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport("page.png")
		if err := NewReconcileStep().Do(t.Context(), report); !errors.Is(err, ErrNoExtraction) {
			t.Errorf("expected ErrNoExtraction, got %v", err)
		}
		if report.Status != model.DocumentReconcileFailed {
			t.Errorf("expected reconcile_failed, got %s", report.Status)
		}
	})

	t.Run("malformed text fails the document", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport("page.png")
		report.Raw = &model.RawExtractionResult{
			CommentCandidates: []model.CommentCandidate{{StartIndex: 0, EndIndex: 1, CommentText: "x"}},
		}
		if err := NewReconcileStep().Do(t.Context(), report); !errors.Is(err, model.ErrMalformedText) {
			t.Errorf("expected ErrMalformedText, got %v", err)
		}
		if report.Annotation != nil {
			t.Error("expected no annotation")
		}
	})

	t.Run("stores annotation and diagnostics", func(t *testing.T) {
		t.Parallel()

		report := model.NewDocumentReport("page.png")
		report.Raw = catRaw()

		if err := NewReconcileStep().Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := &model.DocumentAnnotation{
			BaseText:   "The cat sat.",
			Highlights: []model.Highlight{{StartIndex: 4, EndIndex: 7, BackgroundColor: "#FFFF00"}},
			Comments:   []model.Comment{{StartIndex: 8, EndIndex: 11, CommentText: "good verb"}},
		}
		if diff := cmp.Diff(want, report.Annotation); diff != "" {
			t.Errorf("annotation mismatch (-want +got):\n%s", diff)
		}
		if len(report.Diagnostics) != 1 || report.Diagnostics[0].Reason != model.ReasonWidened {
			t.Errorf("expected one widened diagnostic, got %v", report.Diagnostics)
		}
	})
}

// TestDefaultPipeline tests the assembled pipeline end to end.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	p := DefaultPipeline(&fakeExtractor{raw: catRaw()}, nil)

	want := []string{"image_info", "extract", "reconcile"}
	if diff := cmp.Diff(want, p.StepNames()); diff != "" {
		t.Fatalf("step names mismatch (-want +got):\n%s", diff)
	}

	report := model.NewDocumentReport("https://example.com/page.png")
	if err := p.Execute(t.Context(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != model.DocumentOK {
		t.Errorf("expected status ok, got %s", report.Status)
	}
	if diff := cmp.Diff(want, report.PerformedSteps); diff != "" {
		t.Errorf("performed steps mismatch (-want +got):\n%s", diff)
	}
	if report.Image == nil || report.Image.Source != extract.SourceURL {
		t.Errorf("unexpected image info: %+v", report.Image)
	}
	got := report.Summary()
	if got != (model.Summary{Highlights: 1, Comments: 1, Repaired: 1}) {
		t.Errorf("unexpected summary: %+v", got)
	}
}
