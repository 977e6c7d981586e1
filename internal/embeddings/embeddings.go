// Package embeddings turns text into fixed-dimension vectors for similarity
// search.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/pcarver/ragu/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// ErrEmptyInput is returned when asked to encode empty text. Callers decide
// whether to skip the record or abort.
var ErrEmptyInput = errors.New("cannot embed empty text")

// Service defines the interface for embedding services. Encoding is
// deterministic for a given model configuration; the dimension is fixed and
// discoverable so the store can validate writes.
type Service interface {
	// Embed generates an embedding for record text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use a different
	// task prefix depending on the model).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	return newService(cfg.Embeddings.Provider, "", cfg)
}

// NewServiceForCollection creates an embedding service matching an existing
// collection's provider and model, so queries use the same embedding space
// the records were loaded with.
func NewServiceForCollection(provider, model string, cfg *config.Config) (Service, error) {
	return newService(provider, model, cfg)
}

func newService(provider, model string, cfg *config.Config) (Service, error) {
	switch provider {
	case "ollama":
		if model == "" {
			model = cfg.Embeddings.Ollama.Model
		}
		return NewOllamaService(cfg.Embeddings.Ollama.URL, model)
	case "openai":
		if model == "" {
			model = cfg.Embeddings.OpenAI.Model
		}
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

// validateInputs rejects empty texts before they reach the model.
func validateInputs(texts []string) error {
	for _, text := range texts {
		if text == "" {
			return ErrEmptyInput
		}
	}
	return nil
}
