// Package main provides the entry point for the marginalia CLI.
//
// marginalia extracts highlights and handwritten comments from images of
// annotated documents with a vision model and reconciles them against the
// printed text, so that every span is guaranteed to point at real text.
//
// Usage:
//
//	marginalia extract page1.jpg page2.jpg
//	marginalia reconcile raw.json
//	marginalia serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
