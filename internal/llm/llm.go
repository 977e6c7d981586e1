// Package llm provides the answer-generation services used by the pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pcarver/ragu/internal/config"
)

// Provider represents an LLM provider type.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ErrGeneration wraps transport or quota failures from the generative model.
var ErrGeneration = errors.New("answer generation failed")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// CompletionOptions configures the completion request.
type CompletionOptions struct {
	// Temperature controls randomness (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int
}

// DefaultCompletionOptions returns sensible defaults for grounded answers.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   2048,
	}
}

// Service defines the interface for completion services. The generative
// model is an external collaborator; this package only shapes requests and
// surfaces failures.
type Service interface {
	// Complete generates a completion for the given messages.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// NewService creates the primary completion service from the configuration.
func NewService(cfg *config.Config) (Service, error) {
	return NewServiceFor(cfg.LLM.Provider, "", cfg)
}

// NewFallbackService creates the designated fallback service, or nil when no
// fallback is configured.
func NewFallbackService(cfg *config.Config) (Service, error) {
	if cfg.LLM.Fallback.Provider == "" {
		return nil, nil
	}
	return NewServiceFor(cfg.LLM.Fallback.Provider, cfg.LLM.Fallback.Model, cfg)
}

// NewServiceFor creates a completion service for the given provider,
// optionally overriding the configured model.
func NewServiceFor(provider, model string, cfg *config.Config) (Service, error) {
	switch provider {
	case "ollama":
		if model == "" {
			model = cfg.LLM.Ollama.Model
		}
		return NewOllamaService(cfg.LLM.Ollama.URL, model)
	case "openai":
		if model == "" {
			model = cfg.LLM.OpenAI.Model
		}
		return NewOpenAIService(cfg.LLM.OpenAI.APIKey, model, cfg.LLM.OpenAI.BaseURL)
	case "anthropic":
		if model == "" {
			model = cfg.LLM.Anthropic.Model
		}
		return NewAnthropicService(cfg.LLM.Anthropic.APIKey, model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
