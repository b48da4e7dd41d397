package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no image was given.
	ErrNoTarget = errors.New("no target specified: provide an image URL or path")

	// ErrInvalidTimeout is returned when the model call timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidStrategy is returned for a strategy other than combined or
	// segmented.
	ErrInvalidStrategy = errors.New("invalid strategy: must be combined or segmented")

	// ErrUnknownProvider is returned for an unsupported vision provider.
	ErrUnknownProvider = errors.New("unknown provider: must be openai, anthropic, ollama or mistral")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidTolerance is returned when the reconcile tolerance is negative.
	ErrInvalidTolerance = errors.New("invalid tolerance: must be non-negative")
)
