package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider produces one completion for a request.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// Config configures an LLM provider.
type Config struct {
	// Provider selects the endpoint flavour: openai, ollama, lmstudio or custom.
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	// BaseURL overrides the provider's default endpoint. For custom it is required.
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`

	// MaxRetries bounds retries of rate-limited or unavailable responses.
	// Zero selects the default, a negative value disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// RetryDelay is the first backoff delay; it doubles per retry.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com",
	"ollama":   "http://localhost:11434",
	"lmstudio": "http://localhost:1234",
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch name {
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	case "openai", "ollama", "lmstudio":
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURLs[name]
		}
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider custom requires base_url")
		}
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model not specified")
	}
	return NewOpenAICompat(cfg), nil
}
