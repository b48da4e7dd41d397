package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/nao1215/marginalia/internal/model"
)

// Extractor turns an annotated image into an untrusted extraction result.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) (*model.RawExtractionResult, error)
}

// Strategy selects how the extraction is split into model calls.
type Strategy string

const (
	// StrategyCombined asks for everything in a single call.
	StrategyCombined Strategy = "combined"

	// StrategySegmented transcribes the base text first, then extracts
	// highlights and comments against it in two further calls.
	StrategySegmented Strategy = "segmented"
)

// ErrUnknownStrategy is returned by ParseStrategy for unknown names.
var ErrUnknownStrategy = errors.New("unknown extraction strategy")

// ParseStrategy parses a strategy name. The empty string means combined.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyCombined:
		return StrategyCombined, nil
	case StrategySegmented:
		return StrategySegmented, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Default settings.
const (
	DefaultTimeout    = 2 * time.Minute
	DefaultMaxRetries = 2
	DefaultBackoff    = time.Second
	DefaultMaxTokens  = 4096
)

// Config configures a Vision extractor.
type Config struct {
	// Provider is one of the Provider constants. Empty means openai.
	Provider string

	// Model is the provider's model name. Empty selects DefaultModel.
	Model string

	// BaseURL overrides the API endpoint (openai) or server (ollama).
	BaseURL string

	// APIKey overrides the provider's API key environment variable.
	APIKey string

	Strategy Strategy

	// Timeout bounds each model call. Zero disables it.
	Timeout time.Duration

	// MaxRetries is how many times a failed call is retried. Only
	// transport failures are retried.
	MaxRetries int

	// Backoff is the wait before the first retry; it doubles each time.
	Backoff time.Duration

	MaxTokens int
}

// DefaultConfig returns a Config for the openai provider with default
// limits.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderOpenAI,
		Model:      DefaultModel(ProviderOpenAI),
		Strategy:   StrategyCombined,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		MaxTokens:  DefaultMaxTokens,
	}
}

// Vision is an Extractor backed by a vision language model.
type Vision struct {
	cfg        Config
	llm        llms.Model
	logger     *slog.Logger
	httpClient *http.Client
}

// Option configures a Vision extractor.
type Option func(*Vision)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vision) {
		v.logger = logger
	}
}

// WithLLM uses llm instead of building a client from the config.
func WithLLM(llm llms.Model) Option {
	return func(v *Vision) {
		v.llm = llm
	}
}

// WithHTTPClient sets the client used to download remote images for
// providers that need image bytes.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Vision) {
		v.httpClient = client
	}
}

// New creates a Vision extractor.
func New(cfg Config, opts ...Option) (*Vision, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	cfg.Provider = strings.ToLower(cfg.Provider)
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyCombined
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	v := &Vision{
		cfg:        cfg,
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.llm == nil {
		llm, err := newModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		v.llm = llm
	}
	return v, nil
}

// Config returns the effective configuration.
func (v *Vision) Config() Config {
	return v.cfg
}

// Extract runs the configured strategy against the image at imageURL.
// imageURL may be an http(s) URL, a data URL or a local file path.
func (v *Vision) Extract(ctx context.Context, imageURL string) (*model.RawExtractionResult, error) {
	image, err := v.loadImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	part, err := image.Part(v.cfg.Provider)
	if err != nil {
		return nil, err
	}

	logger := v.logger.With("image", imageURL, "provider", v.cfg.Provider, "model", v.cfg.Model)
	logger.Debug("extracting annotations", "strategy", v.cfg.Strategy)

	var raw *model.RawExtractionResult
	switch v.cfg.Strategy {
	case StrategySegmented:
		raw, err = v.extractSegmented(ctx, part)
	default:
		raw, err = v.extractCombined(ctx, part)
	}
	if err != nil {
		logger.Warn("extraction failed", "code", Classify(err), "error", err)
		return nil, err
	}

	logger.Debug("extraction finished",
		"base_text_runes", len([]rune(raw.BaseText)),
		"highlights", len(raw.HighlightCandidates),
		"comments", len(raw.CommentCandidates))
	return raw, nil
}

func (v *Vision) loadImage(ctx context.Context, imageURL string) (*Image, error) {
	client := v.httpClient
	if usesImageURL(v.cfg.Provider) {
		// Remote URLs are passed through as-is.
		client = nil
	}
	return LoadImage(ctx, imageURL, client)
}

func (v *Vision) extractCombined(ctx context.Context, image llms.ContentPart) (*model.RawExtractionResult, error) {
	content, err := v.generate(ctx, combinedPrompt, image)
	if err != nil {
		return nil, err
	}
	return parseCombined(content)
}

func (v *Vision) extractSegmented(ctx context.Context, image llms.ContentPart) (*model.RawExtractionResult, error) {
	content, err := v.generate(ctx, baseTextPrompt, image)
	if err != nil {
		return nil, err
	}
	baseText, err := parseField[string](content, "baseText")
	if err != nil {
		return nil, err
	}

	content, err = v.generate(ctx, highlightsPrompt, image, llms.TextPart(withBaseText(baseText)))
	if err != nil {
		return nil, err
	}
	highlights, err := parseField[[]model.HighlightCandidate](content, "highlights")
	if err != nil {
		return nil, err
	}

	content, err = v.generate(ctx, commentsPrompt, image, llms.TextPart(withBaseText(baseText)))
	if err != nil {
		return nil, err
	}
	comments, err := parseField[[]model.CommentCandidate](content, "comments")
	if err != nil {
		return nil, err
	}

	return &model.RawExtractionResult{
		BaseText:            baseText,
		HighlightCandidates: highlights,
		CommentCandidates:   comments,
	}, nil
}

// generate sends one system prompt and the user parts, retrying transport
// failures, and returns the first choice's content.
func (v *Vision) generate(ctx context.Context, system string, parts ...llms.ContentPart) (string, error) {
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}

	var callOpts []llms.CallOption
	if v.cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(v.cfg.MaxTokens))
	}
	if v.cfg.Provider == ProviderOpenAI {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	var content string
	err := retry(ctx, v.cfg.MaxRetries, v.cfg.Backoff, v.logger, func(ctx context.Context) error {
		if v.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
			defer cancel()
		}

		resp, err := v.llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrExtractionUnavailable, err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return formatError(errors.New("response has no choices"))
		}
		content = resp.Choices[0].Content
		return nil
	})
	return content, err
}

// PingPrompt is the question sent by Ping.
const PingPrompt = "What's 1 + 1?"

// Ping sends a trivial text prompt and returns the answer. It checks that
// the provider is reachable and the credentials are accepted.
func (v *Vision) Ping(ctx context.Context) (string, error) {
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}
	answer, err := llms.GenerateFromSinglePrompt(ctx, v.llm, PingPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrExtractionUnavailable, err)
	}
	return strings.TrimSpace(answer), nil
}
