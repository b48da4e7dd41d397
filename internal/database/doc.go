// Package database provides SQLite-based storage for processed documents.
//
// AnnotationDB keeps one row per processed image with its full report
// serialized as JSON, the reconciled annotation, and one row per
// diagnostic so that repair and drop rates can be queried without decoding
// reports. Documents are keyed by UUIDv7, which sorts by creation time.
//
// The store uses modernc.org/sqlite, a CGO-free driver, with WAL enabled by
// default.
package database
