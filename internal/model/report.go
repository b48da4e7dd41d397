package model

import "time"

// DocumentStatus describes how far a document got through the pipeline.
type DocumentStatus string

const (
	// DocumentOK means extraction and reconciliation both completed.
	DocumentOK DocumentStatus = "ok"

	// DocumentExtractionFailed means the extractor was unreachable or
	// answered with an unusable response; reconciliation never ran.
	DocumentExtractionFailed DocumentStatus = "extraction_failed"

	// DocumentReconcileFailed means the raw result was rejected as malformed.
	DocumentReconcileFailed DocumentStatus = "reconcile_failed"

	// DocumentCancelled means the batch was cancelled before the document
	// finished.
	DocumentCancelled DocumentStatus = "cancelled"
)

// DocumentReport is the result of processing one annotated image.
// It carries the raw extractor output next to the reconciled annotation so
// that diagnostics can be reviewed against what the extractor claimed.
type DocumentReport struct {
	// ID is assigned by the store when the report is saved.
	ID string `json:"id,omitempty"`

	// ImageURL is the image the annotations were extracted from. Local
	// files are recorded by path.
	ImageURL string `json:"image_url"`

	// Strategy is the extraction strategy name (combined or segmented).
	Strategy string `json:"strategy,omitempty"`

	// Model is the vision model that produced the raw result.
	Model string `json:"model,omitempty"`

	// DateProcessed is when processing started.
	DateProcessed time.Time `json:"date_processed"`

	// Elapsed is the wall time spent on the document.
	Elapsed time.Duration `json:"elapsed_ns"`

	// Image holds metadata read from the image file, when available.
	Image *ImageInfo `json:"image,omitempty"`

	// Raw is the untrusted extractor output.
	Raw *RawExtractionResult `json:"raw,omitempty"`

	// Annotation is the reconciled annotation set. Nil until
	// reconciliation succeeds.
	Annotation *DocumentAnnotation `json:"annotation,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	Status DocumentStatus `json:"status"`

	// TimedOut is true when the pipeline stopped because its context ended.
	TimedOut bool `json:"timed_out"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error contains the error that stopped processing, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// ImageInfo is metadata about the source image.
type ImageInfo struct {
	// Source is "file" for local paths or "url" for remote images.
	Source string `json:"source"`

	MIMEType string `json:"mime_type,omitempty"`

	// Size is the file size in bytes; zero for remote images.
	Size int64 `json:"size,omitempty"`

	// The following fields come from EXIF data and are empty when the image
	// carries none.
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	DateTime    string `json:"date_time,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Software    string `json:"software,omitempty"`
}

// HasEXIF reports whether any EXIF field was populated.
func (i *ImageInfo) HasEXIF() bool {
	if i == nil {
		return false
	}
	return i.Make != "" || i.Model != "" || i.DateTime != "" || i.Orientation != "" || i.Software != ""
}

// Summary aggregates the outcome of a reconciliation run.
type Summary struct {
	Highlights int `json:"highlights"`
	Comments   int `json:"comments"`
	Repaired   int `json:"repaired"`
	Dropped    int `json:"dropped"`
}

// NewDocumentReport creates a report for the given image.
func NewDocumentReport(imageURL string) *DocumentReport {
	return &DocumentReport{
		ImageURL:      imageURL,
		DateProcessed: time.Now(),
		Status:        DocumentOK,
	}
}

// Summary counts emitted spans and diagnostic outcomes.
func (r *DocumentReport) Summary() Summary {
	return Summarize(r.Annotation, r.Diagnostics)
}

// Summarize counts the spans in a (possibly nil) annotation and the
// repaired and dropped outcomes in diags.
func Summarize(a *DocumentAnnotation, diags []Diagnostic) Summary {
	var s Summary
	if a != nil {
		s.Highlights = len(a.Highlights)
		s.Comments = len(a.Comments)
	}
	for _, d := range diags {
		switch d.Outcome {
		case StatusRepaired:
			s.Repaired++
		case StatusDropped:
			s.Dropped++
		case StatusValid:
		}
	}
	return s
}

// Fail records err on the report with the given status.
func (r *DocumentReport) Fail(status DocumentStatus, err error) {
	r.Status = status
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}
