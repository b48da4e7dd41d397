package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/marginalia/internal/model"
)

// MarkdownWriter outputs reports in Markdown for review. Highlights and
// comments are listed with the canonical text they cover.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs a single report.
func (w *MarkdownWriter) Write(report *model.DocumentReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Annotation Report")
	md.PlainText("")
	w.writeDocument(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch outputs a batch overview followed by every report.
func (w *MarkdownWriter) WriteBatch(reports []*model.DocumentReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Annotation Report")
	md.PlainText("")

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		s := r.Summary()
		rows = append(rows, []string{
			"`" + r.ImageURL + "`",
			statusText(r),
			strconv.Itoa(s.Highlights),
			strconv.Itoa(s.Comments),
			strconv.Itoa(s.Repaired),
			strconv.Itoa(s.Dropped),
		})
	}
	md.H2("Documents")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Image", "Status", "Highlights", "Comments", "Repaired", "Dropped"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		md.H2(r.ImageURL)
		md.PlainText("")
		w.writeDocument(md, r)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeDocument(md *markdown.Markdown, report *model.DocumentReport) {
	w.writeHeader(md, report)
	w.writeSummary(md, report)

	if report.Annotation == nil {
		return
	}

	runes := []rune(report.Annotation.BaseText)
	md.H3("Base Text")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlight("text"), report.Annotation.BaseText)
	md.PlainText("")

	w.writeHighlights(md, report.Annotation.Highlights, runes)
	w.writeComments(md, report.Annotation.Comments, runes)
	w.writeDiagnostics(md, report.Diagnostics)
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.DocumentReport) {
	rows := [][]string{
		{"Image", "`" + report.ImageURL + "`"},
		{"Processed", report.DateProcessed.Format("2006-01-02 15:04:05 MST")},
		{"Status", statusText(report)},
	}
	if report.Strategy != "" {
		rows = append(rows, []string{"Strategy", report.Strategy})
	}
	if report.Model != "" {
		rows = append(rows, []string{"Model", report.Model})
	}
	if report.Image.HasEXIF() {
		rows = append(rows, []string{"Camera", report.Image.Make + " " + report.Image.Model})
		if report.Image.DateTime != "" {
			rows = append(rows, []string{"Captured", report.Image.DateTime})
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.DocumentReport) {
	s := report.Summary()

	md.Table(markdown.TableSet{
		Header: []string{"Highlights", "Comments", "Repaired", "Dropped"},
		Rows: [][]string{{
			strconv.Itoa(s.Highlights),
			strconv.Itoa(s.Comments),
			strconv.Itoa(s.Repaired),
			strconv.Itoa(s.Dropped),
		}},
	})
	md.PlainText("")

	if len(report.Diagnostics) > 0 {
		w.writePieChart(md, report.Diagnostics)
	}

	switch {
	case report.Status != model.DocumentOK:
		md.Cautionf("Document was not reconciled: %s.", report.ErrorMessage)
	case s.Dropped > 0:
		md.Warningf("%d annotation(s) could not be placed and were dropped.", s.Dropped)
	case s.Repaired > 0:
		md.Note(fmt.Sprintf("%d annotation(s) were repaired to fit the text.", s.Repaired))
	default:
		md.Tip("All annotations matched the text as extracted.")
	}
	md.PlainText("")
}

// writePieChart charts diagnostics by reason.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, diags []model.Diagnostic) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Diagnostics by Reason"),
		piechart.WithShowData(true),
	)

	counts := make(map[model.Reason]uint64)
	var order []model.Reason
	for _, d := range diags {
		if counts[d.Reason] == 0 {
			order = append(order, d.Reason)
		}
		counts[d.Reason]++
	}
	for _, reason := range order {
		chart.LabelAndIntValue(string(reason), counts[reason])
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeHighlights(md *markdown.Markdown, highlights []model.Highlight, runes []rune) {
	md.H3("Highlights")
	md.PlainText("")
	if len(highlights) == 0 {
		md.PlainText("No highlights.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(highlights))
	for i, h := range highlights {
		rows[i] = []string{
			h.Span().String(),
			"`" + h.BackgroundColor + "`",
			truncate(covered(runes, h.StartIndex, h.EndIndex), 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Range", "Color", "Text"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeComments(md *markdown.Markdown, comments []model.Comment, runes []rune) {
	md.H3("Comments")
	md.PlainText("")
	if len(comments) == 0 {
		md.PlainText("No comments.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(comments))
	for i, c := range comments {
		rows[i] = []string{
			c.Span().String(),
			truncate(covered(runes, c.StartIndex, c.EndIndex), 40),
			truncate(c.CommentText, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Range", "Anchor", "Comment"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeDiagnostics(md *markdown.Markdown, diags []model.Diagnostic) {
	if len(diags) == 0 {
		return
	}

	md.H3("Diagnostics")
	md.PlainText("")

	rows := make([][]string, len(diags))
	for i, d := range diags {
		rows[i] = []string{
			d.Category.String() + " #" + strconv.Itoa(d.Index),
			d.Original.String(),
			d.Outcome.String(),
			string(d.Reason),
			resultString(d),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Candidate", "Claimed", "Outcome", "Reason", "Result"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, d := range diags {
		if d.Detail != "" {
			md.Details(d.Category.String()+" #"+strconv.Itoa(d.Index), d.Detail)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [marginalia](https://github.com/nao1215/marginalia)*")
}

// statusText describes the document status for humans.
func statusText(report *model.DocumentReport) string {
	switch report.Status {
	case model.DocumentOK:
		return "Complete"
	case model.DocumentCancelled:
		return "Cancelled"
	case model.DocumentExtractionFailed:
		return "Extraction failed"
	case model.DocumentReconcileFailed:
		return "Reconciliation failed"
	default:
		return string(report.Status)
	}
}
