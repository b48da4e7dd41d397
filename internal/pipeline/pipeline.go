package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/marginalia/internal/model"
)

// Step is one stage of document processing.
type Step interface {
	// Do executes the step against report. It returns an error only when
	// the document cannot be processed further; the step is expected to
	// record the failure status on the report itself.
	Do(ctx context.Context, report *model.DocumentReport) error

	// Name returns the step's name for logging and the report.
	Name() string
}

// Pipeline executes steps in order for a single document.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing steps after a failure.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to run the remaining steps
// after one fails. The failure is still recorded in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps are added with AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence against report.
//
// Cancellation is checked before each step; a cancelled document is marked
// TimedOut with status cancelled. Returns the first step error unless
// continueOnError is set, in which case errors are only recorded.
func (p *Pipeline) Execute(ctx context.Context, report *model.DocumentReport) error {
	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
	}()

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"image", report.ImageURL,
				"reason", err,
			)
			report.TimedOut = true
			report.Fail(model.DocumentCancelled, err)
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"image", report.ImageURL,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"image", report.ImageURL,
				"error", err,
			)

			report.Error = err
			report.ErrorMessage = err.Error()
			report.PerformedSteps = append(report.PerformedSteps, step.Name())

			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"image", report.ImageURL,
		)
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
