package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/marginalia/internal/extract"
	"github.com/nao1215/marginalia/internal/reconcile"
	"github.com/nao1215/marginalia/internal/span"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "marginalia"

	// DefaultProvider is the vision model provider.
	DefaultProvider = extract.ProviderOpenAI

	// DefaultStrategy asks for text, highlights and comments in one call.
	DefaultStrategy = string(extract.StrategyCombined)

	// DefaultTimeout bounds each model call. Vision models on large scans
	// regularly take over a minute.
	DefaultTimeout = extract.DefaultTimeout

	// DefaultMaxRetries is how often a transport failure is retried.
	DefaultMaxRetries = extract.DefaultMaxRetries

	// DefaultBatchSize is the number of images processed concurrently.
	DefaultBatchSize = 4

	// DefaultWorkers is the number of goroutines validating spans of one
	// document.
	DefaultWorkers = 4

	// DefaultTolerance is how far past the end of the text a highlight may
	// reach and still be repaired.
	DefaultTolerance = span.DefaultTolerance

	// DefaultListenAddress is where the HTTP API listens.
	DefaultListenAddress = "127.0.0.1:8080"
)

// Config holds all configuration options for marginalia.
// It is populated from the config file and CLI flags, in that order, and
// passed down explicitly.
type Config struct {
	// Provider is the vision model provider (openai, anthropic, ollama,
	// mistral).
	Provider string

	// Model is the provider model name. Empty selects the provider default,
	// or OPENAI_MODEL for openai.
	Model string

	// BaseURL overrides the provider endpoint (openai, ollama).
	BaseURL string

	// Strategy is "combined" or "segmented".
	Strategy string

	// Timeout bounds each model call.
	Timeout time.Duration

	// MaxRetries is how often a failed model call is retried.
	MaxRetries int

	// Fuzzy enables approximate relocation of highlights whose text does
	// not occur verbatim.
	Fuzzy bool

	// Tolerance is the out-of-range and fuzzy search distance in runes.
	Tolerance int

	// Workers is the span validation concurrency within one document.
	Workers int

	// BatchSize is the number of images processed concurrently.
	BatchSize int

	Verbose bool

	// ConfigFilePath is an explicit config file. When empty, .marginalia
	// is searched in the current directory and then the home directory.
	ConfigFilePath string

	// Documents holds per-image overrides loaded from the config file.
	Documents *File

	// JSONReport selects JSON output. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// Diagnostics adds diagnostics to wire format JSON output.
	Diagnostics bool

	// ReportFile is written instead of stdout when set.
	ReportFile string

	// Targets are the images to process: URLs, data URLs or file paths.
	Targets []string

	// DBDir is the directory of the SQLite database. Defaults to the XDG
	// data directory.
	DBDir string

	// SaveToDB stores processed documents in the database.
	SaveToDB bool

	// ListenAddress is the HTTP API address used by serve.
	ListenAddress string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Provider:      DefaultProvider,
		Strategy:      DefaultStrategy,
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		Fuzzy:         true,
		Tolerance:     DefaultTolerance,
		Workers:       DefaultWorkers,
		BatchSize:     DefaultBatchSize,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
		ListenAddress: DefaultListenAddress,
	}
}

// XDGDataDir returns the data directory, which holds the database.
// On Linux: ~/.local/share/marginalia
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory.
// On Linux: ~/.config/marginalia
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// Targets are not checked here; commands that need them call
// ValidateTargets.
func (c *Config) Validate() error {
	if !slices.Contains(extract.Providers(), strings.ToLower(c.Provider)) {
		return ErrUnknownProvider
	}
	if _, err := extract.ParseStrategy(c.Strategy); err != nil {
		return ErrInvalidStrategy
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Tolerance < 0 {
		return ErrInvalidTolerance
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ValidateTargets is Validate plus a check that at least one image was
// given.
func (c *Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.Validate()
}

// ApplyFile overlays the extractor and reconcile sections of f onto c.
// Zero values in the file leave the current setting unchanged.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.Documents = f

	e := f.Extractor
	if e.Provider != "" {
		c.Provider = e.Provider
	}
	if e.Model != "" {
		c.Model = e.Model
	}
	if e.BaseURL != "" {
		c.BaseURL = e.BaseURL
	}
	if e.Strategy != "" {
		c.Strategy = e.Strategy
	}
	if e.Timeout > 0 {
		c.Timeout = e.Timeout
	}
	if e.Retries != nil {
		c.MaxRetries = *e.Retries
	}
	if e.BatchSize > 0 {
		c.BatchSize = e.BatchSize
	}

	r := f.Reconcile
	if r.Fuzzy != nil {
		c.Fuzzy = *r.Fuzzy
	}
	if r.Tolerance != nil {
		c.Tolerance = *r.Tolerance
	}
	if r.Workers > 0 {
		c.Workers = r.Workers
	}
}

// ExtractConfig returns the extractor settings for imageURL, applying any
// per-document override from the config file.
func (c *Config) ExtractConfig(imageURL string) extract.Config {
	cfg := extract.DefaultConfig()
	cfg.Provider = strings.ToLower(c.Provider)
	cfg.Model = c.Model
	cfg.BaseURL = c.BaseURL
	cfg.Strategy = extract.Strategy(c.Strategy)
	cfg.Timeout = c.Timeout
	cfg.MaxRetries = c.MaxRetries

	if c.Documents != nil {
		doc := c.Documents.DocumentConfig(imageURL)
		if doc.Strategy != "" {
			cfg.Strategy = extract.Strategy(doc.Strategy)
		}
		if doc.Model != "" {
			cfg.Model = doc.Model
		}
	}

	if cfg.Model == "" && cfg.Provider == extract.ProviderOpenAI {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = extract.DefaultModel(cfg.Provider)
	}
	return cfg
}

// ReconcileOptions returns the reconcile options for c.
func (c *Config) ReconcileOptions() []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithFuzzy(c.Fuzzy),
		reconcile.WithTolerance(c.Tolerance),
		reconcile.WithWorkers(c.Workers),
	}
}
