package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/marginalia/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose adds the base text, diagnostic details and comment anchors.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs a single report.
func (w *SimpleWriter) Write(report *model.DocumentReport) (int, error) {
	var sb strings.Builder
	w.writeDocument(&sb, report)
	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// WriteBatch outputs every report followed by batch totals.
func (w *SimpleWriter) WriteBatch(reports []*model.DocumentReport) (int, error) {
	var sb strings.Builder
	var total model.Summary
	failed := 0

	for _, r := range reports {
		w.writeDocument(&sb, r)

		s := r.Summary()
		total.Highlights += s.Highlights
		total.Comments += s.Comments
		total.Repaired += s.Repaired
		total.Dropped += s.Dropped
		if r.Status != model.DocumentOK {
			failed++
		}
	}

	writeRule(&sb, "-")
	sb.WriteString("BATCH TOTAL\n")
	writeRule(&sb, "-")
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Documents:  %d (%d failed)\n", len(reports), failed))
	writeCounts(&sb, total)
	sb.WriteString("\n")

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeDocument(sb *strings.Builder, report *model.DocumentReport) {
	w.writeHeader(sb, report)
	w.writeSummary(sb, report)

	if report.Annotation == nil {
		return
	}

	runes := []rune(report.Annotation.BaseText)
	if w.verbose {
		w.writeBaseText(sb, report.Annotation.BaseText)
	}
	w.writeHighlights(sb, report.Annotation.Highlights, runes)
	w.writeComments(sb, report.Annotation.Comments, runes)
	w.writeDiagnostics(sb, report.Diagnostics)
}

// writeHeader writes the document information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.DocumentReport) {
	sb.WriteString("\n")
	writeRule(sb, "=")
	sb.WriteString("                        MARGINALIA REPORT\n")
	writeRule(sb, "=")
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Image:      %s\n", report.ImageURL))
	sb.WriteString(fmt.Sprintf("Processed:  %s\n", report.DateProcessed.Format("2006-01-02 15:04:05 MST")))
	if report.Model != "" {
		sb.WriteString(fmt.Sprintf("Model:      %s (%s)\n", report.Model, report.Strategy))
	}

	switch {
	case report.TimedOut:
		sb.WriteString("Status:     CANCELLED\n")
	case report.Status != model.DocumentOK:
		sb.WriteString(fmt.Sprintf("Status:     ERROR - %s\n", report.ErrorMessage))
	default:
		sb.WriteString("Status:     Complete\n")
	}

	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.DocumentReport) {
	writeRule(sb, "-")
	sb.WriteString("SUMMARY\n")
	writeRule(sb, "-")
	sb.WriteString("\n")
	writeCounts(sb, report.Summary())
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBaseText(sb *strings.Builder, text string) {
	writeRule(sb, "-")
	sb.WriteString("BASE TEXT\n")
	writeRule(sb, "-")
	sb.WriteString("\n")
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("  " + line + "\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeHighlights(sb *strings.Builder, highlights []model.Highlight, runes []rune) {
	if len(highlights) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "-")
	sb.WriteString("HIGHLIGHTS\n")
	writeRule(sb, "-")
	sb.WriteString("\n")

	if len(highlights) == 0 {
		sb.WriteString("  No highlights\n\n")
		return
	}
	for _, h := range highlights {
		sb.WriteString(fmt.Sprintf("  %-12s %s  %q\n",
			h.Span().String(), h.BackgroundColor, truncate(covered(runes, h.StartIndex, h.EndIndex), 50)))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeComments(sb *strings.Builder, comments []model.Comment, runes []rune) {
	if len(comments) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "-")
	sb.WriteString("COMMENTS\n")
	writeRule(sb, "-")
	sb.WriteString("\n")

	if len(comments) == 0 {
		sb.WriteString("  No comments\n\n")
		return
	}
	for _, c := range comments {
		sb.WriteString(fmt.Sprintf("  %-12s %s\n", c.Span().String(), c.CommentText))
		if w.verbose {
			sb.WriteString(fmt.Sprintf("               on %q\n", covered(runes, c.StartIndex, c.EndIndex)))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDiagnostics(sb *strings.Builder, diags []model.Diagnostic) {
	if len(diags) == 0 && !w.showEmpty {
		return
	}

	writeRule(sb, "-")
	sb.WriteString("DIAGNOSTICS\n")
	writeRule(sb, "-")
	sb.WriteString("\n")

	if len(diags) == 0 {
		sb.WriteString("  No diagnostics\n\n")
		return
	}
	for _, d := range diags {
		sb.WriteString(fmt.Sprintf("  [%s] %s #%d %s -> %s (%s)\n",
			outcomeIndicator(d.Outcome), d.Category, d.Index, d.Original.String(), resultString(d), d.Reason))
		if w.verbose && d.Detail != "" {
			sb.WriteString(fmt.Sprintf("      %s\n", d.Detail))
		}
	}
	sb.WriteString("\n")
}

// outcomeIndicator returns a visual indicator for a diagnostic outcome.
func outcomeIndicator(s model.Status) string {
	switch s {
	case model.StatusDropped:
		return "x"
	case model.StatusRepaired:
		return "~"
	case model.StatusValid:
		return "+"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	writeRule(sb, "=")
	sb.WriteString("Report generated by marginalia\n")
	sb.WriteString("https://github.com/nao1215/marginalia\n")
	writeRule(sb, "=")
}

func writeCounts(sb *strings.Builder, s model.Summary) {
	sb.WriteString(fmt.Sprintf("  Highlights: %d\n", s.Highlights))
	sb.WriteString(fmt.Sprintf("  Comments:   %d\n", s.Comments))
	sb.WriteString(fmt.Sprintf("  Repaired:   %d\n", s.Repaired))
	sb.WriteString(fmt.Sprintf("  Dropped:    %d\n", s.Dropped))
}

func writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}
