package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService implements the embedding service using the OpenAI API.
type OpenAIService struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIService creates a new OpenAI embedding service.
func NewOpenAIService(apiKey, model, baseURL string, dimensions int) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	if dimensions == 0 {
		dimensions = GetModelDimensions(model)
		if dimensions == 0 {
			dimensions = 1536
			log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
		}
	}

	return &OpenAIService{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed generates an embedding for record text.
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

// EmbedQuery generates an embedding for query text. OpenAI models use no
// task prefixes, so this is the same as Embed.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embedTexts(ctx, texts)
}

// Dimensions returns the embedding dimensions.
func (s *OpenAIService) Dimensions() int {
	return s.dimensions
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}

// embedTexts performs the actual embedding request.
func (s *OpenAIService) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateInputs(texts); err != nil {
		return nil, err
	}

	log.Debug("Requesting embeddings from OpenAI", "model", s.model, "count", len(texts))

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	// Extract embeddings in request order
	vecs := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx >= len(vecs) {
			continue
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}

	if len(vecs) > 0 && len(vecs[0]) > 0 {
		s.dimensions = len(vecs[0])
	}

	return vecs, nil
}
