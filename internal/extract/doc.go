// Package extract asks a vision language model to transcribe an annotated
// document image into a model.RawExtractionResult.
//
// The extractor is untrusted: its output is only ever parsed and handed to
// the reconcile package, never used directly. Transport failures are
// reported as model.ErrExtractionUnavailable and unparseable answers as
// model.ErrExtractionFormat.
//
// Two strategies are supported. Combined sends one prompt that asks for the
// base text, highlights and comments at once. Segmented first transcribes the
// base text, then asks for highlights and comments in separate calls that
// receive the transcription, so the model indexes into text it has already
// committed to.
package extract
