package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/marginalia/internal/config"
	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/pipeline"
	"github.com/nao1215/marginalia/internal/report"
)

// extractorFactory creates the extractor for one extraction config.
type extractorFactory func(cfg extract.Config) (extract.Extractor, error)

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <image>...",
		Short: "Extract and reconcile annotations from document images",
		Long: `Extract sends each image to a vision model, reconciles the highlights and
handwritten comments it reports against the transcribed text, and prints a
report. Results are saved to the history database unless --no-save is given.

Images may be local files, http(s) URLs or data URLs.

Examples:
  # Extract one page
  marginalia extract page1.jpg

  # Extract several pages, four at a time
  marginalia extract --batch 4 scans/*.jpg

  # Use a local model through ollama
  marginalia extract --provider ollama --model llava page1.jpg

  # Transcribe first, then locate annotations (better on dense pages)
  marginalia extract --strategy segmented page1.jpg

  # Write a Markdown report
  marginalia extract --markdown -o report.md page1.jpg

Per-image settings can be placed in .marginalia:
  documents:
    images:
      scan-012.jpg:
        strategy: segmented`,
		Args: cobra.ArbitraryArgs,
		RunE: runExtractCmd,
	}

	// Model flags
	cmd.Flags().StringP("provider", "P", config.DefaultProvider,
		"Vision model provider (openai, anthropic, ollama, mistral)")
	cmd.Flags().StringP("model", "M", "",
		"Model name (default: provider default, or OPENAI_MODEL)")
	cmd.Flags().String("base-url", "",
		"Custom API endpoint or ollama host")
	cmd.Flags().StringP("strategy", "s", config.DefaultStrategy,
		"Extraction strategy (combined, segmented)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each model request")
	cmd.Flags().IntP("retries", "r", config.DefaultMaxRetries,
		"Retries for failed model requests")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of images processed concurrently")

	// Reconcile flags
	cmd.Flags().Bool("no-fuzzy", false,
		"Disable approximate relocation of misspelled highlights")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not save results to the history database")

	return cmd
}

// runExtractCmd executes the extract command.
func runExtractCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildExtractConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.ValidateTargets(); err != nil {
		if errors.Is(err, config.ErrNoTarget) {
			return errors.New("no images provided (specify one or more image paths or URLs as arguments)")
		}
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	factory := func(c extract.Config) (extract.Extractor, error) {
		return extract.New(c, extract.WithLogger(logger))
	}
	return runExtract(ctx, cfg, logger, factory, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildExtractConfig creates a Config from the config file and the extract
// command flags. Flags override the file only when given.
func buildExtractConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"provider": &cfg.Provider,
		"model":    &cfg.Model,
		"base-url": &cfg.BaseURL,
		"strategy": &cfg.Strategy,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}

	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return nil, err
		}
	}

	noFuzzy, err := flags.GetBool("no-fuzzy")
	if err != nil {
		return nil, err
	}
	if noFuzzy {
		cfg.Fuzzy = false
	}

	cfg.JSONReport, err = flags.GetBool("json")
	if err != nil {
		return nil, err
	}
	cfg.MarkdownReport, err = flags.GetBool("markdown")
	if err != nil {
		return nil, err
	}
	cfg.ReportFile, err = flags.GetString("output")
	if err != nil {
		return nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	cfg.Targets = args
	return cfg, nil
}

// runExtract processes every target, writes the report and saves the
// results. Progress goes to status so that stdout carries only the report.
func runExtract(ctx context.Context, cfg *config.Config, logger *slog.Logger, factory extractorFactory, stdout, status io.Writer) error {
	logger.Info("starting extraction",
		"targets", len(cfg.Targets),
		"provider", cfg.Provider,
		"strategy", cfg.Strategy,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.AnnotationDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	var (
		reports []*model.DocumentReport
		err     error
	)
	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		reports, err = runBatchExtract(ctx, cfg, logger, factory, status)
	} else {
		reports, err = runSequentialExtract(ctx, cfg, logger, factory, status)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for _, r := range reports {
		if saveErr := saveDocument(ctx, db, r, logger); saveErr != nil {
			logger.Error("failed to save document", "image", r.ImageURL, "error", saveErr)
		}
	}

	if outErr := outputReports(cfg, reports, stdout); outErr != nil {
		return outErr
	}
	if err != nil {
		return err
	}
	return failureError(reports)
}

// runSequentialExtract processes targets one at a time, applying the
// per-image settings from the config file.
func runSequentialExtract(ctx context.Context, cfg *config.Config, logger *slog.Logger, factory extractorFactory, status io.Writer) ([]*model.DocumentReport, error) {
	reports := make([]*model.DocumentReport, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		extractor, err := factory(cfg.ExtractConfig(target))
		if err != nil {
			return reports, err
		}

		fmt.Fprintf(status, "Extracting %s...\n", target)
		doc := model.NewDocumentReport(target)
		if err := newDocumentPipeline(extractor, cfg, logger).Execute(ctx, doc); err != nil {
			logger.Error("extraction failed", "image", target, "error", err)
			fmt.Fprintf(status, "Error for %s: %v\n", target, err)
		} else {
			fmt.Fprintf(status, "Completed in %s\n", doc.Elapsed.Round(time.Millisecond))
		}
		reports = append(reports, doc)
	}
	return reports, nil
}

// runBatchExtract processes targets concurrently using BatchProcessor.
func runBatchExtract(ctx context.Context, cfg *config.Config, logger *slog.Logger, factory extractorFactory, status io.Writer) ([]*model.DocumentReport, error) {
	fmt.Fprintf(status, "Starting batch extraction of %d images (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.BatchSize)
	startTime := time.Now()

	if cfg.Documents != nil && len(cfg.Documents.Documents.Images) > 0 {
		logger.Warn("batch processing uses the default document settings; per-image overrides are ignored",
			"imageCount", len(cfg.Documents.Documents.Images))
		fmt.Fprintf(status, "Warning: Per-image settings are ignored in batch mode. Use --batch 1 to apply them.\n\n")
	}

	// One extractor serves the whole batch.
	extractor, err := factory(cfg.ExtractConfig(""))
	if err != nil {
		return nil, err
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return newDocumentPipeline(extractor, cfg, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	reports := make([]*model.DocumentReport, len(cfg.Targets))
	var (
		mu   sync.Mutex
		done int
	)
	err = bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(doc *model.DocumentReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		done++
		reports[index] = doc
		fmt.Fprintf(status, "[%d/%d] %s: %s\n", done, len(cfg.Targets), doc.ImageURL, doc.Status)
	})
	for i, doc := range reports {
		if doc == nil {
			reports[i] = pipeline.CancelledReport(ctx, cfg.Targets[i])
		}
	}

	fmt.Fprintf(status, "\nBatch extraction completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	return reports, err
}

// newDocumentPipeline creates the extract and reconcile pipeline for one
// document.
func newDocumentPipeline(extractor extract.Extractor, cfg *config.Config, logger *slog.Logger) *pipeline.Pipeline {
	return pipeline.DefaultPipeline(extractor,
		[]pipeline.Option{pipeline.WithLogger(logger)},
		cfg.ReconcileOptions()...,
	)
}

// newReportWriter returns the writer for the configured report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// outputReports writes the reports in the requested format.
func outputReports(cfg *config.Config, reports []*model.DocumentReport, stdout io.Writer) error {
	if len(reports) == 0 {
		return nil
	}

	output, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // the write error is reported below

	w := newReportWriter(cfg, output)
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteBatch(reports)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// saveDocument saves the report to the database. Documents that never
// started are not saved. If db is nil, this function is a no-op.
func saveDocument(ctx context.Context, db *database.AnnotationDB, doc *model.DocumentReport, logger *slog.Logger) error {
	if db == nil || doc.Status == model.DocumentCancelled {
		return nil
	}

	// Saving must finish even when the run was interrupted.
	id, err := db.SaveDocument(context.WithoutCancel(ctx), doc)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	logger.Info("document saved to database", "image", doc.ImageURL, "id", id)
	return nil
}

// failureError returns an error naming how many documents failed, or nil.
func failureError(reports []*model.DocumentReport) error {
	var failed int
	for _, r := range reports {
		if r.Status != model.DocumentOK {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d documents failed", failed, len(reports))
}
