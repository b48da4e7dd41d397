// Package report writes processed document reports.
//
// Three formats are provided:
//   - JSONWriter: the reconciled annotation in wire format, optionally with
//     diagnostics, or the full document report for tool integration
//   - MarkdownWriter: tables of highlights, comments and diagnostics with
//     the text they cover, for review
//   - SimpleWriter: plain text for the terminal
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
