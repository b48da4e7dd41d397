package config

import (
	"path/filepath"
	"time"
)

// ExtractorSection is the "extractor" section of the config file.
type ExtractorSection struct {
	Provider string        `yaml:"provider,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Strategy string        `yaml:"strategy,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`

	// Retries is a pointer so that an explicit 0 disables retrying.
	Retries *int `yaml:"retries,omitempty"`

	BatchSize int `yaml:"batch_size,omitempty"`
}

// ReconcileSection is the "reconcile" section of the config file.
type ReconcileSection struct {
	Fuzzy     *bool `yaml:"fuzzy,omitempty"`
	Tolerance *int  `yaml:"tolerance,omitempty"`
	Workers   int   `yaml:"workers,omitempty"`
}

// DocumentConfig overrides extraction settings for one image.
type DocumentConfig struct {
	// Strategy overrides the extraction strategy. Dense pages often do
	// better with "segmented".
	Strategy string `yaml:"strategy,omitempty"`

	// Model overrides the vision model.
	Model string `yaml:"model,omitempty"`
}

// DocumentsSection is the "documents" section of the config file.
type DocumentsSection struct {
	// Defaults applies to every image unless overridden below.
	Defaults DocumentConfig `yaml:"defaults,omitempty"`

	// Images maps an image URL, path or base name to its overrides.
	Images map[string]DocumentConfig `yaml:"images,omitempty"`
}

// File represents the structure of the .marginalia configuration file.
type File struct {
	Extractor ExtractorSection `yaml:"extractor,omitempty"`
	Reconcile ReconcileSection `yaml:"reconcile,omitempty"`
	Documents DocumentsSection `yaml:"documents,omitempty"`
}

// DocumentConfig returns the overrides for imageURL merged over the
// defaults. An exact match wins over a match on the base name.
func (cf *File) DocumentConfig(imageURL string) DocumentConfig {
	result := cf.Documents.Defaults

	doc, ok := cf.Documents.Images[imageURL]
	if !ok {
		doc, ok = cf.Documents.Images[filepath.Base(imageURL)]
	}
	if !ok {
		return result
	}

	if doc.Strategy != "" {
		result.Strategy = doc.Strategy
	}
	if doc.Model != "" {
		result.Model = doc.Model
	}
	return result
}
