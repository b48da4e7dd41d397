package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMistral   = "mistral"
)

// DefaultOllamaHost is used when neither BaseURL nor OLLAMA_HOST is set.
const DefaultOllamaHost = "http://127.0.0.1:11434"

var (
	// ErrUnsupportedProvider is returned for a provider name not listed above.
	ErrUnsupportedProvider = errors.New("unsupported vision provider")

	// ErrMissingAPIKey is returned when a hosted provider has no API key.
	ErrMissingAPIKey = errors.New("API key is not set")
)

// Providers returns the supported provider names.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderMistral}
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderAnthropic:
		return "claude-3-5-sonnet-latest"
	case ProviderOllama:
		return "llava"
	case ProviderMistral:
		return "pixtral-12b-latest"
	default:
		return "gpt-4o-mini"
	}
}

// apiKeyEnv maps hosted providers to the environment variable holding
// their key.
var apiKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderMistral:   "MISTRAL_API_KEY",
}

// newModel builds the langchaingo client for cfg.Provider.
func newModel(cfg Config) (llms.Model, error) {
	provider := strings.ToLower(cfg.Provider)
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel(provider)
	}

	apiKey := cfg.APIKey
	if env, ok := apiKeyEnv[provider]; ok && apiKey == "" {
		apiKey = os.Getenv(env)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, env)
		}
	}

	switch provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(modelName),
			openai.WithToken(apiKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case ProviderAnthropic:
		return anthropic.New(
			anthropic.WithModel(modelName),
			anthropic.WithToken(apiKey),
		)
	case ProviderOllama:
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = DefaultOllamaHost
		}
		return ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(host),
		)
	case ProviderMistral:
		return mistral.New(
			mistral.WithModel(modelName),
			mistral.WithAPIKey(apiKey),
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// usesImageURL reports whether the provider accepts images as (data) URLs.
// The others receive raw bytes.
func usesImageURL(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, ProviderMistral:
		return true
	default:
		return false
	}
}
