// Package model defines the core data structures used throughout marginalia.
//
// This package contains the following main types:
//   - RawExtractionResult: the untrusted output of a vision extractor
//   - DocumentAnnotation: the reconciled, wire-format annotation set
//   - Diagnostic: a record of a repaired or dropped span
//   - DocumentReport: one document's end-to-end processing result
//
// All index fields are half-open character ranges [start, end) counted in
// Unicode code points. Candidate indices refer to the raw base text returned
// by the extractor; DocumentAnnotation indices refer to the canonical text.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
