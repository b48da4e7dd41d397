package report

import (
	"io"

	"github.com/nao1215/marginalia/internal/model"
)

// Writer writes document reports.
type Writer interface {
	// Write outputs a single document report.
	Write(report *model.DocumentReport) (int, error)

	// WriteBatch outputs the reports of a batch run.
	WriteBatch(reports []*model.DocumentReport) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all Writers and stops on the first error.
func (m *MultiWriter) Write(report *model.DocumentReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the reports to all Writers and stops on the first
// error.
func (m *MultiWriter) WriteBatch(reports []*model.DocumentReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// covered returns the text of runes in [start, end), clamped.
func covered(runes []rune, start, end int) string {
	start = max(0, min(start, len(runes)))
	end = max(start, min(end, len(runes)))
	return string(runes[start:end])
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func resultString(d model.Diagnostic) string {
	if d.Result == nil {
		return "-"
	}
	return d.Result.String()
}
