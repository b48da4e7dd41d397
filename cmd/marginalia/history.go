package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/marginalia/internal/config"
	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/report"
)

// defaultHistoryLimit is how many documents --list shows.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command shows documents stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [document-id]",
		Short: "Show previously processed documents",
		Long: `History shows documents saved by 'marginalia extract' and
'marginalia reconcile --save'.

Without arguments it lists the most recent documents. With a document ID it
prints the stored report of that document.

Examples:
  # List recent documents
  marginalia history

  # Show one document
  marginalia history 01968a9e-5c1b-7e0a-9d2f-3b8c1e4a7f60

  # Print only the reconciled annotation
  marginalia history --annotation 01968a9e-5c1b-7e0a-9d2f-3b8c1e4a7f60

  # Show how often each diagnostic reason occurred
  marginalia history --reasons

  # Delete a document
  marginalia history --delete 01968a9e-5c1b-7e0a-9d2f-3b8c1e4a7f60`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	// Listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List stored documents (default when no document ID is given)")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of documents to list (0 for all)")
	cmd.Flags().Bool("reasons", false,
		"Show diagnostic reason counts across all documents")

	// Document flags
	cmd.Flags().Bool("annotation", false,
		"Print only the reconciled annotation of the document as JSON")
	cmd.Flags().Bool("delete", false,
		"Delete the document")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	id         string
	list       bool
	limit      int
	reasons    bool
	annotation bool
	delete     bool
	json       bool
	markdown   bool
	dbDir      string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate before opening the database so that usage errors do not
	// create an empty one.
	if err := opts.validate(); err != nil {
		return err
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	switch {
	case opts.reasons:
		return showReasonCounts(ctx, db, out, opts.json)
	case opts.id == "" || opts.list:
		return listDocuments(ctx, db, out, opts.limit, opts.json)
	case opts.delete:
		return deleteDocument(ctx, db, out, opts.id)
	case opts.annotation:
		return showAnnotation(ctx, db, out, opts.id)
	default:
		return showDocument(ctx, db, out, opts)
	}
}

func parseHistoryFlags(cmd *cobra.Command, args []string) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{}
	if len(args) > 0 {
		opts.id = args[0]
	}

	var err error
	if opts.list, err = flags.GetBool("list"); err != nil {
		return nil, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.reasons, err = flags.GetBool("reasons"); err != nil {
		return nil, err
	}
	if opts.annotation, err = flags.GetBool("annotation"); err != nil {
		return nil, err
	}
	if opts.delete, err = flags.GetBool("delete"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	return opts, nil
}

func (o *historyOptions) validate() error {
	if o.json && o.markdown {
		return config.ErrConflictingReportFormats
	}
	if (o.delete || o.annotation) && o.id == "" {
		return errors.New("document ID is required (use 'marginalia history' to see stored documents)")
	}
	if o.delete && o.annotation {
		return errors.New("--delete and --annotation cannot be used together")
	}
	if o.limit < 0 {
		return errors.New("--limit must not be negative")
	}
	return nil
}

// listDocuments lists the most recent documents in the database.
func listDocuments(ctx context.Context, db *database.AnnotationDB, out io.Writer, limit int, jsonOutput bool) error {
	docs, err := db.ListDocuments(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if jsonOutput {
		if docs == nil {
			docs = []database.DocumentMetadata{}
		}
		return writeIndentedJSON(out, docs)
	}

	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents found in the database.")
		fmt.Fprintln(out, "\nUse 'marginalia extract <image>' to process a document.")
		return nil
	}

	fmt.Fprintf(out, "Documents (%d):\n\n", len(docs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-18s  %-16s  %s\n", "ID", "Date", "Status", "Summary", "Image")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 110))
	for _, meta := range docs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-18s  %-16s  %s\n",
			meta.ID,
			meta.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			meta.Status,
			formatSummary(meta.Summary),
			meta.ImageURL,
		)
	}
	fmt.Fprintln(out, "\nUse 'marginalia history <id>' to show a document.")

	return nil
}

// formatSummary formats summary counts as "H:2 C:1 R:1 D:0".
func formatSummary(s model.Summary) string {
	return fmt.Sprintf("H:%d C:%d R:%d D:%d", s.Highlights, s.Comments, s.Repaired, s.Dropped)
}

// showDocument prints the stored report of one document.
func showDocument(ctx context.Context, db *database.AnnotationDB, out io.Writer, opts *historyOptions) error {
	doc, err := db.GetDocument(ctx, opts.id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", opts.id)
	}

	cfg := config.NewConfig()
	cfg.JSONReport = opts.json
	cfg.MarkdownReport = opts.markdown
	cfg.Verbose = true
	_, err = newReportWriter(cfg, out).Write(doc)
	return err
}

// showAnnotation prints the reconciled annotation of one document in the
// same shape the reconcile command produces.
func showAnnotation(ctx context.Context, db *database.AnnotationDB, out io.Writer, id string) error {
	annotation, err := db.GetAnnotation(ctx, id)
	if err != nil {
		return err
	}
	if annotation == nil {
		return fmt.Errorf("no annotation stored for document: %s", id)
	}

	doc := &model.DocumentReport{Annotation: annotation}
	_, err = report.NewJSONWriter(out, report.WithWireFormat(), report.WithPrettyPrint()).Write(doc)
	return err
}

// deleteDocument removes one document from the database.
func deleteDocument(ctx context.Context, db *database.AnnotationDB, out io.Writer, id string) error {
	deleted, err := db.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("document not found: %s", id)
	}
	fmt.Fprintf(out, "Deleted %s\n", id)
	return nil
}

// showReasonCounts prints how often each diagnostic reason was recorded.
func showReasonCounts(ctx context.Context, db *database.AnnotationDB, out io.Writer, jsonOutput bool) error {
	counts, err := db.ReasonCounts(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeIndentedJSON(out, counts)
	}

	if len(counts) == 0 {
		fmt.Fprintln(out, "No diagnostics recorded.")
		return nil
	}

	reasons := slices.Sorted(maps.Keys(counts))
	fmt.Fprintln(out, "Diagnostics by reason:")
	fmt.Fprintln(out)
	for _, reason := range reasons {
		fmt.Fprintf(out, "  %-24s %d\n", reason, counts[reason])
	}
	return nil
}

func writeIndentedJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
