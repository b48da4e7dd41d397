package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
	"github.com/nao1215/marginalia/internal/reconcile"
)

// MaxBodySize bounds request bodies. Raw extraction results are small;
// images are passed by URL.
const MaxBodySize = 8 * 1024 * 1024

// shutdownTimeout is how long in-flight requests get after the context ends.
const shutdownTimeout = 10 * time.Second

// Store persists processed documents. *database.AnnotationDB implements it.
type Store interface {
	SaveDocument(ctx context.Context, report *model.DocumentReport) (string, error)
	GetDocument(ctx context.Context, id string) (*model.DocumentReport, error)
	ListDocuments(ctx context.Context, limit int) ([]database.DocumentMetadata, error)
}

// Server serves the reconciliation API.
type Server struct {
	router         *chi.Mux
	logger         *slog.Logger
	extractor      extract.Extractor
	store          Store
	reconcileOpts  []reconcile.Option
	extractTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithExtractor enables POST /v1/extract.
func WithExtractor(e extract.Extractor) Option {
	return func(s *Server) {
		s.extractor = e
	}
}

// WithStore enables saving extracted documents and the /v1/documents
// routes.
func WithStore(store Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithReconcileOptions sets the options used for every reconciliation.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(s *Server) {
		s.reconcileOpts = opts
	}
}

// WithExtractTimeout bounds a whole /v1/extract request. Zero means no
// limit beyond the client's own.
func WithExtractTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.extractTimeout = d
	}
}

// New creates a Server and registers its routes.
func New(opts ...Option) *Server {
	s := &Server{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/extract", s.handleExtract)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// logRequests logs each request at debug level and server errors at
// error level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
