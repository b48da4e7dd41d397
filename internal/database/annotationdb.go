package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/marginalia/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "marginalia.db"

// AnnotationDB stores processed document reports.
type AnnotationDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures AnnotationDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AnnotationDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*AnnotationDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AnnotationDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Path returns the database file path.
func (adb *AnnotationDB) Path() string {
	return adb.dbPath
}

// Close closes the database connection.
func (adb *AnnotationDB) Close() error {
	return adb.db.Close()
}

func (adb *AnnotationDB) createTables() error {
	schema := `
	-- One row per processed image
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		image_url TEXT NOT NULL,
		strategy TEXT,
		model TEXT,
		status TEXT NOT NULL,
		error TEXT,
		fingerprint TEXT,
		created_at TEXT NOT NULL,
		elapsed_ns INTEGER DEFAULT 0,
		summary TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_image ON documents(image_url);
	CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

	-- Reconciled annotation in wire format
	CREATE TABLE IF NOT EXISTS annotations (
		document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		annotation_json TEXT NOT NULL
	);

	-- Per-span repair and drop records
	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		candidate_index INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		result_start INTEGER,
		result_end INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_document ON diagnostics(document_id);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_reason ON diagnostics(reason);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveDocument stores report and returns its ID. A report without an ID is
// assigned a new UUIDv7; saving a report whose ID already exists replaces
// the stored copy.
func (adb *AnnotationDB) SaveDocument(ctx context.Context, report *model.DocumentReport) (string, error) {
	if report.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate document id: %w", err)
		}
		report.ID = id.String()
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(report.Summary())
	if err != nil {
		return "", fmt.Errorf("failed to serialize summary: %w", err)
	}

	var fingerprint string
	if report.Raw != nil {
		fingerprint = report.Raw.Fingerprint()
	}

	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	// Child rows go first so a replaced document starts clean.
	if _, err := tx.ExecContext(ctx, `DELETE FROM diagnostics WHERE document_id = ?`, report.ID); err != nil {
		return "", fmt.Errorf("failed to clear diagnostics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE document_id = ?`, report.ID); err != nil {
		return "", fmt.Errorf("failed to clear annotation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO documents (id, image_url, strategy, model, status, error, fingerprint, created_at, elapsed_ns, summary, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		image_url = excluded.image_url,
		strategy = excluded.strategy,
		model = excluded.model,
		status = excluded.status,
		error = excluded.error,
		fingerprint = excluded.fingerprint,
		created_at = excluded.created_at,
		elapsed_ns = excluded.elapsed_ns,
		summary = excluded.summary,
		report_json = excluded.report_json
	`,
		report.ID,
		report.ImageURL,
		report.Strategy,
		report.Model,
		string(report.Status),
		report.ErrorMessage,
		fingerprint,
		report.DateProcessed.UTC().Format(time.RFC3339Nano),
		int64(report.Elapsed),
		string(summaryJSON),
		string(reportJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save document: %w", err)
	}

	if report.Annotation != nil {
		annotationJSON, err := json.Marshal(report.Annotation)
		if err != nil {
			return "", fmt.Errorf("failed to serialize annotation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO annotations (document_id, annotation_json) VALUES (?, ?)`,
			report.ID, string(annotationJSON),
		); err != nil {
			return "", fmt.Errorf("failed to save annotation: %w", err)
		}
	}

	for _, d := range report.Diagnostics {
		var start, end sql.NullInt64
		if d.Result != nil {
			start = sql.NullInt64{Int64: int64(d.Result.Start), Valid: true}
			end = sql.NullInt64{Int64: int64(d.Result.End), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO diagnostics (document_id, category, candidate_index, outcome, reason, detail, result_start, result_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.ID,
			d.Category.String(),
			d.Index,
			d.Outcome.String(),
			string(d.Reason),
			d.Detail,
			start,
			end,
		); err != nil {
			return "", fmt.Errorf("failed to save diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit document: %w", err)
	}
	return report.ID, nil
}

// GetDocument retrieves a document by ID. It returns nil, nil when no
// document has that ID.
func (adb *AnnotationDB) GetDocument(ctx context.Context, id string) (*model.DocumentReport, error) {
	var reportJSON string
	err := adb.db.QueryRowContext(ctx, `SELECT report_json FROM documents WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeReport(reportJSON)
}

// GetAnnotation retrieves only the reconciled annotation of a document.
// It returns nil, nil when the document has none.
func (adb *AnnotationDB) GetAnnotation(ctx context.Context, id string) (*model.DocumentAnnotation, error) {
	var annotationJSON string
	err := adb.db.QueryRowContext(ctx,
		`SELECT annotation_json FROM annotations WHERE document_id = ?`, id,
	).Scan(&annotationJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}

	var a model.DocumentAnnotation
	if err := json.Unmarshal([]byte(annotationJSON), &a); err != nil {
		return nil, fmt.Errorf("failed to parse annotation: %w", err)
	}
	return &a, nil
}

// FindByFingerprint returns the most recent successfully reconciled
// document whose raw extraction has the given fingerprint, or nil, nil.
func (adb *AnnotationDB) FindByFingerprint(ctx context.Context, fingerprint string) (*model.DocumentReport, error) {
	var reportJSON string
	err := adb.db.QueryRowContext(ctx, `
	SELECT report_json FROM documents
	WHERE fingerprint = ? AND status = ?
	ORDER BY created_at DESC, id DESC
	LIMIT 1
	`, fingerprint, string(model.DocumentOK)).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return decodeReport(reportJSON)
}

// DocumentMetadata is summary information about a stored document, used to
// list history without loading full reports.
type DocumentMetadata struct {
	ID        string               `json:"id"`
	ImageURL  string               `json:"image_url"`
	Strategy  string               `json:"strategy,omitempty"`
	Model     string               `json:"model,omitempty"`
	Status    model.DocumentStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Elapsed   time.Duration        `json:"elapsed_ns"`
	Summary   model.Summary        `json:"summary"`
}

// ListDocuments returns document metadata, newest first. A limit of zero or
// less returns every document.
func (adb *AnnotationDB) ListDocuments(ctx context.Context, limit int) ([]DocumentMetadata, error) {
	query := `
	SELECT id, image_url, strategy, model, status, error, created_at, elapsed_ns, summary
	FROM documents
	ORDER BY created_at DESC, id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := adb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var results []DocumentMetadata
	for rows.Next() {
		var (
			meta                                    DocumentMetadata
			strategy, modelName, errMsg, summaryRaw sql.NullString
			status, createdAt                       string
			elapsed                                 int64
		)
		if err := rows.Scan(&meta.ID, &meta.ImageURL, &strategy, &modelName, &status,
			&errMsg, &createdAt, &elapsed, &summaryRaw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		meta.Strategy = strategy.String
		meta.Model = modelName.String
		meta.Status = model.DocumentStatus(status)
		meta.Error = errMsg.String
		meta.CreatedAt = parseTimestamp(createdAt)
		meta.Elapsed = time.Duration(elapsed)
		if summaryRaw.Valid && summaryRaw.String != "" {
			// A corrupt summary leaves zero counts.
			_ = json.Unmarshal([]byte(summaryRaw.String), &meta.Summary) //nolint:errcheck // best effort
		}

		results = append(results, meta)
	}
	return results, rows.Err()
}

// ReasonCounts returns how often each diagnostic reason was recorded across
// all documents.
func (adb *AnnotationDB) ReasonCounts(ctx context.Context) (map[model.Reason]int, error) {
	rows, err := adb.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM diagnostics GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("failed to count diagnostics: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Reason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic count: %w", err)
		}
		counts[model.Reason(reason)] = n
	}
	return counts, rows.Err()
}

// DeleteDocument removes a document with its annotation and diagnostics.
// It reports whether a document was deleted.
func (adb *AnnotationDB) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := adb.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	return n > 0, nil
}

func decodeReport(reportJSON string) (*model.DocumentReport, error) {
	var report model.DocumentReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with the known formats and returns the zero
// time when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
