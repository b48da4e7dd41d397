package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/marginalia/internal/database"
	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/model"
)

const catJSON = `{
	"baseText": "The cat sat.",
	"highlights": [{"startIndex": 4, "endIndex": 7, "backgroundColor": "#ffff00", "highlightedText": "cat"}],
	"comments": [{"startIndex": 8, "endIndex": 8, "commentText": "good verb"}]
}`

var catAnnotation = &model.DocumentAnnotation{
	BaseText:   "The cat sat.",
	Highlights: []model.Highlight{{StartIndex: 4, EndIndex: 7, BackgroundColor: "#FFFF00"}},
	Comments:   []model.Comment{{StartIndex: 8, EndIndex: 11, CommentText: "good verb"}},
}

type fakeExtractor struct {
	raw *model.RawExtractionResult
	err error
}

func (f *fakeExtractor) Extract(ctx context.Context, _ string) (*model.RawExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.raw, f.err
}

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*model.DocumentReport
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*model.DocumentReport)}
}

func (f *fakeStore) SaveDocument(_ context.Context, report *model.DocumentReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report.ID = fmt.Sprintf("doc-%d", len(f.docs)+1)
	f.docs[report.ID] = report
	return report.ID, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*model.DocumentReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id], nil
}

func (f *fakeStore) ListDocuments(_ context.Context, limit int) ([]database.DocumentMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.DocumentMetadata
	for id, r := range f.docs {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, database.DocumentMetadata{ID: id, ImageURL: r.ImageURL, Status: r.Status})
	}
	return out, nil
}

func catRaw(t *testing.T) *model.RawExtractionResult {
	t.Helper()
	raw, err := model.ParseRawExtraction([]byte(catJSON))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return raw
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(New(append([]Option{WithLogger(logger)}, opts...)...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body)) //nolint:noctx // test
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, data
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, data
}

// TestHealth tests the liveness endpoint.
func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", body)
	}
}

// TestReconcileEndpoint tests POST /v1/reconcile.
func TestReconcileEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("reconciles raw extraction", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		resp, body := post(t, ts.URL+"/v1/reconcile", catJSON)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}

		var got ReconcileResponse
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if diff := cmp.Diff(catAnnotation, got.Annotation); diff != "" {
			t.Errorf("annotation mismatch (-want +got):\n%s", diff)
		}
		if len(got.Diagnostics) != 1 || got.Diagnostics[0].Reason != model.ReasonWidened {
			t.Errorf("expected one widened diagnostic, got %+v", got.Diagnostics)
		}
		if got.Summary != (model.Summary{Highlights: 1, Comments: 1, Repaired: 1}) {
			t.Errorf("unexpected summary %+v", got.Summary)
		}
	})

	t.Run("clean input has empty diagnostics array", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		resp, body := post(t, ts.URL+"/v1/reconcile", `{"baseText": "hi", "highlights": [], "comments": []}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), `"diagnostics":[]`) {
			t.Errorf("expected empty diagnostics array, got %s", body)
		}
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   extract.Code
	}{
		{name: "missing field", body: `{"baseText": "x", "highlights": []}`, status: http.StatusBadRequest, code: extract.CodeInvalid},
		{name: "not JSON", body: `hello`, status: http.StatusBadRequest, code: extract.CodeInvalid},
		{
			name:   "empty text with spans",
			body:   `{"baseText": "", "highlights": [{"startIndex": 0, "endIndex": 1, "backgroundColor": "#fff"}], "comments": []}`,
			status: http.StatusUnprocessableEntity,
			code:   extract.CodeInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t)
			resp, body := post(t, ts.URL+"/v1/reconcile", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			var e ErrorResponse
			if err := json.Unmarshal(body, &e); err != nil {
				t.Fatalf("invalid error JSON: %v", err)
			}
			if e.Code != tt.code || e.Error == "" {
				t.Errorf("unexpected error response %+v", e)
			}
		})
	}
}

// TestExtractEndpoint tests POST /v1/extract.
func TestExtractEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("extracts reconciles and saves", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		ts := newTestServer(t, WithExtractor(&fakeExtractor{raw: catRaw(t)}), WithStore(store))

		resp, body := post(t, ts.URL+"/v1/extract", `{"imageUrl": "https://example.com/page.png"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}

		var got ReconcileResponse
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.ID != "doc-1" {
			t.Errorf("expected saved id doc-1, got %q", got.ID)
		}
		if diff := cmp.Diff(catAnnotation, got.Annotation); diff != "" {
			t.Errorf("annotation mismatch (-want +got):\n%s", diff)
		}

		saved := store.docs["doc-1"]
		if saved == nil || saved.ImageURL != "https://example.com/page.png" || saved.Status != model.DocumentOK {
			t.Errorf("unexpected saved report %+v", saved)
		}
	})

	t.Run("noSave skips the store", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		ts := newTestServer(t, WithExtractor(&fakeExtractor{raw: catRaw(t)}), WithStore(store))

		resp, body := post(t, ts.URL+"/v1/extract", `{"imageUrl": "https://example.com/page.png", "noSave": true}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
		if len(store.docs) != 0 {
			t.Errorf("expected nothing saved, got %d", len(store.docs))
		}
	})

	t.Run("unavailable extractor is a bad gateway", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("%w: connection refused", model.ErrExtractionUnavailable)
		ts := newTestServer(t, WithExtractor(&fakeExtractor{err: err}))

		resp, body := post(t, ts.URL+"/v1/extract", `{"imageUrl": "https://example.com/page.png"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
		}
		var e ErrorResponse
		if err := json.Unmarshal(body, &e); err != nil {
			t.Fatalf("invalid error JSON: %v", err)
		}
		if e.Code != extract.CodeNetwork {
			t.Errorf("expected network code, got %q", e.Code)
		}
	})

	t.Run("timeout is a gateway timeout", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t,
			WithExtractor(&fakeExtractor{raw: catRaw(t)}),
			WithExtractTimeout(time.Nanosecond),
		)
		resp, body := post(t, ts.URL+"/v1/extract", `{"imageUrl": "https://example.com/page.png"}`)
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("local paths are refused", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t, WithExtractor(&fakeExtractor{raw: catRaw(t)}))
		resp, _ := post(t, ts.URL+"/v1/extract", `{"imageUrl": "/etc/passwd"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("no extractor configured", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		resp, _ := post(t, ts.URL+"/v1/extract", `{"imageUrl": "https://example.com/page.png"}`)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})
}

// TestDocumentsEndpoints tests the stored document routes.
func TestDocumentsEndpoints(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	report := model.NewDocumentReport("https://example.com/page.png")
	report.Annotation = catAnnotation
	if _, err := store.SaveDocument(t.Context(), report); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, WithStore(store))

	t.Run("list", func(t *testing.T) {
		t.Parallel()

		resp, body := get(t, ts.URL+"/v1/documents?limit=10")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var docs []database.DocumentMetadata
		if err := json.Unmarshal(body, &docs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "doc-1" {
			t.Errorf("unexpected documents %+v", docs)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		t.Parallel()

		resp, _ := get(t, ts.URL+"/v1/documents?limit=-1")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("get", func(t *testing.T) {
		t.Parallel()

		resp, body := get(t, ts.URL+"/v1/documents/doc-1")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var got model.DocumentReport
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if diff := cmp.Diff(catAnnotation, got.Annotation); diff != "" {
			t.Errorf("annotation mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		resp, _ := get(t, ts.URL+"/v1/documents/missing")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

// TestListenAndServe tests graceful shutdown on context cancellation.
func TestListenAndServe(t *testing.T) {
	t.Parallel()

	s := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
