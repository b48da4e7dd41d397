package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/marginalia/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, report *model.DocumentReport) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.DocumentReport) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, p.StepNames()); diff != "" {
		t.Errorf("step names mismatch (-want +got):\n%s", diff)
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(_ context.Context, _ *model.DocumentReport) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"), record("c"))

		report := model.NewDocumentReport("page.png")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"a", "b", "c"}
		if diff := cmp.Diff(want, order); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want, report.PerformedSteps); diff != "" {
			t.Errorf("performed steps mismatch (-want +got):\n%s", diff)
		}
		if report.Status != model.DocumentOK {
			t.Errorf("expected status ok, got %s", report.Status)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("step failed")
		failing := &mockStep{name: "failing", doFunc: func(_ context.Context, _ *model.DocumentReport) error {
			return stepErr
		}}
		after := &mockStep{name: "after"}

		p := New()
		p.AddSteps(failing, after)

		report := model.NewDocumentReport("page.png")
		err := p.Execute(t.Context(), report)

		if !errors.Is(err, stepErr) {
			t.Errorf("expected step error, got %v", err)
		}
		if after.callCount != 0 {
			t.Error("expected subsequent step not to run")
		}
		if report.ErrorMessage != "step failed" {
			t.Errorf("expected error message to be recorded, got %q", report.ErrorMessage)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{name: "failing", doFunc: func(_ context.Context, _ *model.DocumentReport) error {
			return errors.New("boom")
		}}
		after := &mockStep{name: "after"}

		p := New(WithContinueOnError(true))
		p.AddSteps(failing, after)

		report := model.NewDocumentReport("page.png")
		if err := p.Execute(t.Context(), report); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if after.callCount != 1 {
			t.Error("expected subsequent step to run")
		}
		if report.Error == nil {
			t.Error("expected error to be recorded")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)

		report := model.NewDocumentReport("page.png")
		err := p.Execute(ctx, report)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("expected step not to run")
		}
		if !report.TimedOut || report.Status != model.DocumentCancelled {
			t.Errorf("expected cancelled report, got timed_out=%v status=%s", report.TimedOut, report.Status)
		}
	})
}
