package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/pipeline"
	"github.com/nao1215/marginalia/internal/reconcile"
)

// ReconcileResponse is the body returned by /v1/reconcile and /v1/extract.
type ReconcileResponse struct {
	// ID is set when the document was saved.
	ID string `json:"id,omitempty"`

	Annotation  *model.DocumentAnnotation `json:"annotation"`
	Diagnostics []model.Diagnostic        `json:"diagnostics"`
	Summary     model.Summary             `json:"summary"`
}

// ExtractRequest is the body of POST /v1/extract.
type ExtractRequest struct {
	// ImageURL is an http(s) or data URL. Local paths are refused.
	ImageURL string `json:"imageUrl"`

	// NoSave skips storing the document even when a store is configured.
	NoSave bool `json:"noSave,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string       `json:"error"`
	Code  extract.Code `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReconcile reconciles a raw extraction result posted as JSON.
// POST /v1/reconcile
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	raw, err := model.ParseRawExtraction(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := reconcile.Reconcile(raw, s.reconcileOptions()...)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		Annotation:  &res.Annotation,
		Diagnostics: nonNil(res.Diagnostics),
		Summary:     res.Summary(),
	})
}

// handleExtract runs the full pipeline for one image URL.
// POST /v1/extract
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("extraction is not configured"))
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if !isRemoteImage(req.ImageURL) {
		s.writeError(w, http.StatusBadRequest, errors.New("imageUrl must be an http(s) or data URL"))
		return
	}

	ctx := r.Context()
	if s.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.extractTimeout)
		defer cancel()
	}

	report := model.NewDocumentReport(req.ImageURL)
	p := pipeline.DefaultPipeline(s.extractor, []pipeline.Option{pipeline.WithLogger(s.logger)}, s.reconcileOpts...)
	if err := p.Execute(ctx, report); err != nil {
		s.writeError(w, statusFor(report, err), err)
		return
	}

	resp := ReconcileResponse{
		Annotation:  report.Annotation,
		Diagnostics: nonNil(report.Diagnostics),
		Summary:     report.Summary(),
	}
	if s.store != nil && !req.NoSave {
		id, err := s.store.SaveDocument(ctx, report)
		if err != nil {
			s.logger.Error("failed to save document", "image", report.ImageURL, "error", err)
		}
		resp.ID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListDocuments lists stored documents.
// GET /v1/documents?limit=N
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("storage is not configured"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	docs, err := s.store.ListDocuments(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleGetDocument returns one stored document report.
// GET /v1/documents/{id}
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("storage is not configured"))
		return
	}

	report, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if report == nil {
		s.writeError(w, http.StatusNotFound, errors.New("document not found"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) reconcileOptions() []reconcile.Option {
	return append([]reconcile.Option{reconcile.WithLogger(s.logger)}, s.reconcileOpts...)
}

// statusFor maps a failed pipeline run to an HTTP status.
func statusFor(report *model.DocumentReport, err error) int {
	switch report.Status {
	case model.DocumentCancelled:
		return http.StatusGatewayTimeout
	case model.DocumentReconcileFailed:
		return http.StatusUnprocessableEntity
	case model.DocumentExtractionFailed:
		return http.StatusBadGateway
	case model.DocumentOK:
	}
	if extract.Classify(err) == extract.CodeCancel {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func isRemoteImage(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:")
}

func nonNil(diags []model.Diagnostic) []model.Diagnostic {
	if diags == nil {
		return []model.Diagnostic{}
	}
	return diags
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: extract.Classify(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
