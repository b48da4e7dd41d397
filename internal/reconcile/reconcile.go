// Package reconcile turns an untrusted extraction result into a validated
// DocumentAnnotation.
//
// Reconcile runs the full chain for one document: the base text is
// canonicalized, each highlight and comment candidate is validated and, if
// needed, repaired against the canonical text, overlapping spans are
// resolved per category, and the surviving spans are sorted. Per-span
// anomalies never fail the call; they are returned as Diagnostics next to a
// best-effort annotation.
//
// Reconcile is deterministic: the same input always yields the same output,
// regardless of the number of workers.
package reconcile

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/marginalia/internal/canon"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/overlap"
	"github.com/nao1215/marginalia/internal/span"
)

// Result is the output of a reconciliation run.
type Result struct {
	Annotation  model.DocumentAnnotation `json:"annotation"`
	Diagnostics []model.Diagnostic       `json:"diagnostics"`

	// Text is the canonicalized base text with its offset maps, for callers
	// that report positions against the raw text.
	Text *canon.Text `json:"-"`
}

// Summary counts the outcome of the run.
func (r *Result) Summary() model.Summary {
	return model.Summarize(&r.Annotation, r.Diagnostics)
}

type options struct {
	logger    *slog.Logger
	workers   int
	fuzzy     bool
	tolerance int
}

// Option configures Reconcile.
type Option func(*options)

// WithLogger sets the logger for the run summary.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkers sets how many goroutines validate spans concurrently.
// Values below 2 process spans sequentially.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithFuzzy enables or disables fuzzy relocation of highlights whose
// claimed text does not occur verbatim. It is enabled by default.
func WithFuzzy(enabled bool) Option {
	return func(o *options) {
		o.fuzzy = enabled
	}
}

// WithTolerance sets how far past the end of the text a highlight may
// reach and still be repaired, and the half-width of the fuzzy search
// window. The default is span.DefaultTolerance.
func WithTolerance(n int) Option {
	return func(o *options) {
		o.tolerance = n
	}
}

// Reconcile validates raw and returns the reconciled annotation with its
// diagnostics.
//
// It fails with model.ErrMalformedInput when raw is nil and with
// model.ErrMalformedText when the base text is empty but candidates exist.
func Reconcile(raw *model.RawExtractionResult, opts ...Option) (*Result, error) {
	o := options{
		workers:   1,
		fuzzy:     true,
		tolerance: span.DefaultTolerance,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if raw == nil {
		return nil, fmt.Errorf("%w: nil extraction result", model.ErrMalformedInput)
	}

	text, err := canon.Canonicalize(raw.BaseText, raw.SpanCount())
	if err != nil {
		return nil, err
	}

	engine := span.New(text, span.WithFuzzy(o.fuzzy), span.WithTolerance(o.tolerance))

	highlights := make([]span.Validated, len(raw.HighlightCandidates))
	comments := make([]span.Validated, len(raw.CommentCandidates))

	// Slots are written by index, so the result does not depend on
	// scheduling.
	var g errgroup.Group
	g.SetLimit(max(o.workers, 1))
	for i, c := range raw.HighlightCandidates {
		g.Go(func() error {
			highlights[i] = engine.Highlight(i, c)
			return nil
		})
	}
	for i, c := range raw.CommentCandidates {
		g.Go(func() error {
			comments[i] = engine.Comment(i, c)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail

	diags := make([]model.Diagnostic, 0, len(highlights)+len(comments))
	for _, v := range highlights {
		if v.Diagnostic != nil {
			diags = append(diags, *v.Diagnostic)
		}
	}
	for _, v := range comments {
		if v.Diagnostic != nil {
			diags = append(diags, *v.Diagnostic)
		}
	}

	hRes := overlap.Highlights(highlights)
	cRes := overlap.Comments(comments)
	diags = append(diags, hRes.Diagnostics...)
	diags = append(diags, cRes.Diagnostics...)
	model.SortDiagnostics(diags)

	res := &Result{
		Annotation: model.DocumentAnnotation{
			BaseText:   text.String(),
			Highlights: make([]model.Highlight, 0, len(hRes.Spans)),
			Comments:   make([]model.Comment, 0, len(cRes.Spans)),
		},
		Diagnostics: diags,
		Text:        text,
	}
	for _, v := range hRes.Spans {
		res.Annotation.Highlights = append(res.Annotation.Highlights, model.Highlight{
			StartIndex:      v.Span.Start,
			EndIndex:        v.Span.End,
			BackgroundColor: v.Payload,
		})
	}
	for _, v := range cRes.Spans {
		res.Annotation.Comments = append(res.Annotation.Comments, model.Comment{
			StartIndex:  v.Span.Start,
			EndIndex:    v.Span.End,
			CommentText: v.Payload,
		})
	}

	sum := res.Summary()
	o.logger.Debug("reconciled annotations",
		"highlight_candidates", len(raw.HighlightCandidates),
		"comment_candidates", len(raw.CommentCandidates),
		"highlights", sum.Highlights,
		"comments", sum.Comments,
		"repaired", sum.Repaired,
		"dropped", sum.Dropped,
	)

	return res, nil
}
