package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/reconcile"
)

// ErrNoExtraction is returned by ReconcileStep when no raw extraction
// result is on the report.
var ErrNoExtraction = errors.New("no extraction result to reconcile")

// ImageInfoStep records metadata about the source image: where it came
// from, its type and size, and descriptive EXIF tags. Failures are logged
// and never stop the pipeline; the extractor reports unreadable images
// itself.
type ImageInfoStep struct {
	// client fetches remote images. Nil leaves them unfetched.
	client *http.Client
	logger *slog.Logger
}

// ImageInfoStepOption configures an ImageInfoStep.
type ImageInfoStepOption func(*ImageInfoStep)

// WithImageHTTPClient sets the client used to fetch remote images.
func WithImageHTTPClient(client *http.Client) ImageInfoStepOption {
	return func(s *ImageInfoStep) {
		s.client = client
	}
}

// WithImageLogger sets a custom logger for the step.
func WithImageLogger(logger *slog.Logger) ImageInfoStepOption {
	return func(s *ImageInfoStep) {
		s.logger = logger
	}
}

// NewImageInfoStep creates a new image inspection step.
func NewImageInfoStep(opts ...ImageInfoStepOption) *ImageInfoStep {
	s := &ImageInfoStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ImageInfoStep) Name() string {
	return "image_info"
}

// Do executes the image inspection step.
func (s *ImageInfoStep) Do(ctx context.Context, report *model.DocumentReport) error {
	img, err := extract.LoadImage(ctx, report.ImageURL, s.client)
	if err != nil {
		s.logger.Debug("image inspection failed", "image", report.ImageURL, "error", err)
		return nil
	}
	report.Image = img.Info
	return nil
}

// ExtractStep asks the extractor for the raw annotations of the image.
type ExtractStep struct {
	extractor extract.Extractor
	logger    *slog.Logger
}

// ExtractStepOption configures an ExtractStep.
type ExtractStepOption func(*ExtractStep)

// WithExtractLogger sets a custom logger for the step.
func WithExtractLogger(logger *slog.Logger) ExtractStepOption {
	return func(s *ExtractStep) {
		s.logger = logger
	}
}

// NewExtractStep creates a new extraction step.
func NewExtractStep(extractor extract.Extractor, opts ...ExtractStepOption) *ExtractStep {
	s := &ExtractStep{
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extraction step. The strategy and model are recorded
// when the extractor exposes its configuration.
func (s *ExtractStep) Do(ctx context.Context, report *model.DocumentReport) error {
	if c, ok := s.extractor.(interface{ Config() extract.Config }); ok {
		cfg := c.Config()
		report.Strategy = string(cfg.Strategy)
		report.Model = cfg.Model
	}

	raw, err := s.extractor.Extract(ctx, report.ImageURL)
	if err != nil {
		status := model.DocumentExtractionFailed
		if extract.Classify(err) == extract.CodeCancel && ctx.Err() != nil {
			status = model.DocumentCancelled
			report.TimedOut = true
		}
		report.Fail(status, err)
		return fmt.Errorf("extraction failed: %w", err)
	}

	s.logger.Debug("extracted raw annotations",
		"image", report.ImageURL,
		"highlights", len(raw.HighlightCandidates),
		"comments", len(raw.CommentCandidates),
	)
	report.Raw = raw
	return nil
}

// ReconcileStep validates the raw extraction result on the report and
// stores the reconciled annotation and its diagnostics.
type ReconcileStep struct {
	opts []reconcile.Option
}

// NewReconcileStep creates a new reconciliation step. The options are
// passed to reconcile.Reconcile.
func NewReconcileStep(opts ...reconcile.Option) *ReconcileStep {
	return &ReconcileStep{opts: opts}
}

// Name returns the step name.
func (s *ReconcileStep) Name() string {
	return "reconcile"
}

// Do executes the reconciliation step.
func (s *ReconcileStep) Do(_ context.Context, report *model.DocumentReport) error {
	if report.Raw == nil {
		report.Fail(model.DocumentReconcileFailed, ErrNoExtraction)
		return ErrNoExtraction
	}

	res, err := reconcile.Reconcile(report.Raw, s.opts...)
	if err != nil {
		report.Fail(model.DocumentReconcileFailed, err)
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	report.Annotation = &res.Annotation
	report.Diagnostics = res.Diagnostics
	return nil
}

// DefaultPipeline returns a pipeline with the image inspection, extraction
// and reconciliation steps.
func DefaultPipeline(extractor extract.Extractor, pipelineOpts []Option, reconcileOpts ...reconcile.Option) *Pipeline {
	p := New(pipelineOpts...)
	p.AddSteps(
		NewImageInfoStep(WithImageLogger(p.logger)),
		NewExtractStep(extractor, WithExtractLogger(p.logger)),
		NewReconcileStep(append([]reconcile.Option{reconcile.WithLogger(p.logger)}, reconcileOpts...)...),
	)
	return p
}
