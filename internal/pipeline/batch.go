package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/marginalia/internal/model"
)

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 10

// BatchProcessor processes many images concurrently, one pipeline per
// image.
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline for each document.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent documents.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch processes images concurrently and returns one report per
// image, in input order. Failed documents carry their error in the report.
// When ctx is cancelled, documents that had not started are returned with
// status cancelled and the context error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, images []string) ([]*model.DocumentReport, error) {
	results := make([]*model.DocumentReport, len(images))
	err := bp.ProcessBatchWithCallback(ctx, images, func(report *model.DocumentReport, index int) {
		// Each index is written by exactly one goroutine.
		results[index] = report
	})

	for i, report := range results {
		if report == nil {
			results[i] = CancelledReport(ctx, images[i])
		}
	}
	return results, err
}

// ProcessBatchWithCallback processes images and calls callback for each
// finished document with its index in images. The callback runs on the
// worker goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	images []string,
	callback func(report *model.DocumentReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_images", len(images),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, image := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("processing document",
				"image", image,
				"index", i+1,
				"total", len(images),
			)

			report := model.NewDocumentReport(image)
			pipeline := bp.pipelineFactory()
			if err := pipeline.Execute(ctx, report); err != nil {
				// Recorded in the report; other documents carry on.
				bp.logger.Warn("document failed",
					"image", image,
					"status", report.Status,
					"error", err,
				)
			} else {
				summary := report.Summary()
				bp.logger.Info("document completed",
					"image", image,
					"highlights", summary.Highlights,
					"comments", summary.Comments,
					"repaired", summary.Repaired,
					"dropped", summary.Dropped,
				)
			}

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_images", len(images),
		"elapsed", time.Since(startTime),
	)
	return err
}

// CancelledReport returns the report of a document that never started
// because ctx ended first.
func CancelledReport(ctx context.Context, image string) *model.DocumentReport {
	report := model.NewDocumentReport(image)
	report.TimedOut = true
	report.Fail(model.DocumentCancelled, context.Cause(ctx))
	return report
}
