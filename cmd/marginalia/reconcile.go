package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/marginalia/internal/config"
	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/pipeline"
	"github.com/nao1215/marginalia/internal/report"
)

// stdinName is the argument that selects standard input.
const stdinName = "-"

// NewReconcileCmd creates the reconcile command.
func NewReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [file|-]",
		Short: "Reconcile a raw extraction result without calling a model",
		Long: `Reconcile validates a raw extraction result against its own base text.

The input is the JSON a vision model produced for one image:

  {"baseText": "...", "highlights": [...], "comments": [...]}

Highlights whose indices do not cover the text they claim are relocated,
out-of-range spans are clamped, overlapping highlights of the same color
are merged, and spans that cannot be repaired are dropped. The result is
written as JSON in the same shape, with indices that are guaranteed to be
valid.

Reads standard input when no file (or "-") is given.

Examples:
  # Reconcile a saved model response
  marginalia reconcile raw.json

  # Include the repair decisions
  marginalia reconcile --diagnostics raw.json

  # Read from a pipe and write a Markdown report
  cat raw.json | marginalia reconcile --markdown -o report.md

  # Store the result in the history database
  marginalia reconcile --save raw.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReconcileCmd,
	}

	cmd.Flags().BoolP("json", "j", true,
		"Output the reconciled annotation as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().BoolP("diagnostics", "d", false,
		"Wrap JSON output as {annotation, diagnostics}")
	cmd.Flags().Bool("pretty", false,
		"Indent JSON output")
	cmd.Flags().Bool("no-fuzzy", false,
		"Disable approximate relocation of misspelled highlights")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("save", false,
		"Save the result to the history database")

	return cmd
}

// runReconcileCmd executes the reconcile command.
func runReconcileCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildReconcileConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Verbose)

	name := stdinName
	if len(cfg.Targets) > 0 {
		name = cfg.Targets[0]
	}
	data, err := readInput(name, cmd.InOrStdin())
	if err != nil {
		return err
	}

	raw, err := model.ParseRawExtraction(data)
	if err != nil {
		return fmt.Errorf("invalid extraction result in %s: %w", inputLabel(name), err)
	}

	ctx := commandContext(cmd)
	doc := model.NewDocumentReport(inputLabel(name))
	doc.Raw = raw

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddStep(pipeline.NewReconcileStep(cfg.ReconcileOptions()...))
	if err := p.Execute(ctx, doc); err != nil {
		return err
	}

	if cfg.SaveToDB {
		if err := saveReconciled(ctx, cfg, doc, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	out, closeOutput, err := openOutput(cfg.ReportFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // the write error is reported below

	var w report.Writer
	if cfg.MarkdownReport {
		w = report.NewMarkdownWriter(out)
	} else {
		opts := []report.JSONWriterOption{
			report.WithWireFormat(),
			report.WithDiagnostics(cfg.Diagnostics),
		}
		if pretty {
			opts = append(opts, report.WithPrettyPrint())
		}
		w = report.NewJSONWriter(out, opts...)
	}
	if _, err := w.Write(doc); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// buildReconcileConfig creates a Config from the config file and the
// reconcile command flags.
func buildReconcileConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	jsonSet := cmd.Flags().Changed("json")
	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}
	if cfg.MarkdownReport && !jsonSet {
		// --json is on by default; --markdown alone switches it off.
		cfg.JSONReport = false
	}

	cfg.Diagnostics, err = cmd.Flags().GetBool("diagnostics")
	if err != nil {
		return nil, err
	}

	noFuzzy, err := cmd.Flags().GetBool("no-fuzzy")
	if err != nil {
		return nil, err
	}
	if noFuzzy {
		cfg.Fuzzy = false
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.SaveToDB, err = cmd.Flags().GetBool("save")
	if err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// readInput reads the named file, or stdin for "-".
func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == stdinName {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(name) //nolint:gosec // user-provided input path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func inputLabel(name string) string {
	if name == stdinName {
		return "stdin"
	}
	return name
}

// saveReconciled stores doc unless an identical extraction result was
// already reconciled, in which case the stored ID is reused.
func saveReconciled(ctx context.Context, cfg *config.Config, doc *model.DocumentReport, status io.Writer) error {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	existing, err := db.FindByFingerprint(ctx, doc.Raw.Fingerprint())
	if err != nil {
		return err
	}
	if existing != nil {
		doc.ID = existing.ID
		fmt.Fprintf(status, "Already stored as %s\n", existing.ID)
		return nil
	}

	id, err := db.SaveDocument(ctx, doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(status, "Saved as %s\n", id)
	return nil
}
