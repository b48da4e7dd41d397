package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/marginalia/internal/model"
)

// JSONWriter outputs reports in JSON format.
//
// By default the full document report is written. In wire format mode only
// the reconciled annotation is written:
//
//	{"baseText": "...", "highlights": [...], "comments": [...]}
//
// and with diagnostics enabled it is wrapped as
// {"annotation": ..., "diagnostics": [...]}.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string

	wire        bool
	diagnostics bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithWireFormat writes only the reconciled annotation.
func WithWireFormat() JSONWriterOption {
	return func(w *JSONWriter) {
		w.wire = true
	}
}

// WithDiagnostics adds diagnostics next to the annotation in wire format
// mode. It has no effect on full reports, which always carry them.
func WithDiagnostics(enabled bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.diagnostics = enabled
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// envelope pairs an annotation with its diagnostics.
type envelope struct {
	Annotation  *model.DocumentAnnotation `json:"annotation"`
	Diagnostics []model.Diagnostic        `json:"diagnostics"`
}

// Write outputs one report.
func (w *JSONWriter) Write(report *model.DocumentReport) (int, error) {
	return w.writeJSON(w.value(report))
}

// WriteBatch outputs the reports as a JSON array.
func (w *JSONWriter) WriteBatch(reports []*model.DocumentReport) (int, error) {
	values := make([]any, 0, len(reports))
	for _, r := range reports {
		values = append(values, w.value(r))
	}
	return w.writeJSON(values)
}

func (w *JSONWriter) value(report *model.DocumentReport) any {
	if !w.wire {
		return report
	}

	annotation := report.Annotation
	if annotation == nil {
		// Failed documents still produce a well-formed wire value.
		annotation = &model.DocumentAnnotation{}
	}
	if !w.diagnostics {
		return annotation
	}

	diags := report.Diagnostics
	if diags == nil {
		diags = []model.Diagnostic{}
	}
	return envelope{Annotation: annotation, Diagnostics: diags}
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps reports with the version that produced them.
type JSONReport struct {
	Version string                  `json:"version"`
	Reports []*model.DocumentReport `json:"reports"`
	Summary model.Summary           `json:"summary"`
}

// NewJSONReport creates a JSONReport with the summed counts of reports.
func NewJSONReport(reports []*model.DocumentReport, version string) *JSONReport {
	r := &JSONReport{Version: version, Reports: reports}
	for _, doc := range reports {
		s := doc.Summary()
		r.Summary.Highlights += s.Highlights
		r.Summary.Comments += s.Comments
		r.Summary.Repaired += s.Repaired
		r.Summary.Dropped += s.Dropped
	}
	return r
}

// FullJSONWriter outputs complete reports with a version wrapper.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
// Wire format options are ignored.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	w := NewJSONWriter(output, opts...)
	w.wire = false
	return &FullJSONWriter{
		JSONWriter: w,
		version:    version,
	}
}

// Write outputs a single report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.DocumentReport) (int, error) {
	return w.writeJSON(NewJSONReport([]*model.DocumentReport{report}, w.version))
}

// WriteBatch outputs the reports wrapped with metadata.
func (w *FullJSONWriter) WriteBatch(reports []*model.DocumentReport) (int, error) {
	return w.writeJSON(NewJSONReport(reports, w.version))
}
