// Package server exposes reconciliation over HTTP using chi.
//
// Routes:
//
//	GET  /healthz              liveness
//	POST /v1/reconcile         raw extraction JSON -> {annotation, diagnostics}
//	POST /v1/extract           {"imageUrl": "..."} -> extract, reconcile, save
//	GET  /v1/documents         stored document metadata, newest first
//	GET  /v1/documents/{id}    one stored document report
//
// /v1/extract needs an extractor and the document routes need a store;
// without them those routes answer 503.
package server
