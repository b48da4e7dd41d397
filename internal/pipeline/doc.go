// Package pipeline runs annotated document images through a sequence of
// steps: image inspection, extraction and reconciliation.
//
// Each step receives the document report and fills in its part of it. A
// Pipeline executes steps in order for one document; a BatchProcessor runs
// one pipeline per image with bounded concurrency using errgroup. Documents
// in a batch are independent, so one failure never affects another.
package pipeline
