package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/marginalia/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })

		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(5))

		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(0))

		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithBatchLogger(nil))

		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("returns reports in input order", func(t *testing.T) {
		t.Parallel()

		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "noop", doFunc: func(_ context.Context, report *model.DocumentReport) error {
				// Later images finish first.
				if report.ImageURL == "a.png" {
					time.Sleep(20 * time.Millisecond)
				}
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory, WithConcurrency(3))
		images := []string{"a.png", "b.png", "c.png"}

		reports, err := bp.ProcessBatch(t.Context(), images)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != len(images) {
			t.Fatalf("expected %d reports, got %d", len(images), len(reports))
		}
		for i, r := range reports {
			if r.ImageURL != images[i] {
				t.Errorf("report %d: got %q, expected %q", i, r.ImageURL, images[i])
			}
		}
	})

	t.Run("one failure does not affect others", func(t *testing.T) {
		t.Parallel()

		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "maybe-fail", doFunc: func(_ context.Context, report *model.DocumentReport) error {
				if report.ImageURL == "bad.png" {
					err := errors.New("unreadable")
					report.Fail(model.DocumentExtractionFailed, err)
					return err
				}
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory)
		reports, err := bp.ProcessBatch(t.Context(), []string{"good.png", "bad.png", "fine.png"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.DocumentStatus{model.DocumentOK, model.DocumentExtractionFailed, model.DocumentOK}
		for i, r := range reports {
			if r.Status != want[i] {
				t.Errorf("report %d: status %s, expected %s", i, r.Status, want[i])
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "track", doFunc: func(_ context.Context, _ *model.DocumentReport) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory, WithConcurrency(2))
		images := make([]string, 10)
		for i := range images {
			images[i] = "page.png"
		}

		if _, err := bp.ProcessBatch(t.Context(), images); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent documents, saw %d", peak.Load())
		}
	})

	t.Run("cancelled batch marks unstarted documents", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })
		reports, err := bp.ProcessBatch(ctx, []string{"a.png", "b.png"})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		for i, r := range reports {
			if r == nil || r.Status != model.DocumentCancelled {
				t.Errorf("report %d: expected cancelled report, got %+v", i, r)
			}
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests streaming results.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(2))
	images := []string{"a.png", "b.png", "c.png"}

	var mu sync.Mutex
	seen := make(map[int]string)
	err := bp.ProcessBatchWithCallback(t.Context(), images, func(report *model.DocumentReport, index int) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = report.ImageURL
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, image := range images {
		if seen[i] != image {
			t.Errorf("index %d: got %q, expected %q", i, seen[i], image)
		}
	}
}
