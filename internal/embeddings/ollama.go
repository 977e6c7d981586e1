package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Task prefixes for models that embed queries and documents differently
var taskPrefixes = map[string]struct {
	document string
	query    string
}{
	"nomic-embed-text": {
		document: "search_document: ",
		query:    "search_query: ",
	},
	"mxbai-embed-large": {
		document: "",
		query:    "Represent this sentence for searching relevant passages: ",
	},
}

// OllamaService implements the embedding service using a local Ollama server.
type OllamaService struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// ollamaEmbedRequest is the request body for the Ollama embed API.
type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate,omitempty"`
}

// ollamaEmbedResponse is the response from the Ollama embed API.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService creates a new Ollama embedding service.
func NewOllamaService(baseURL, model string) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	dimensions := GetModelDimensions(model)
	if dimensions == 0 {
		dimensions = 768
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
	}

	return &OllamaService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Embed generates an embedding for record text.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.applyPrefix(text, false))
}

// EmbedQuery generates an embedding for query text.
func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.applyPrefix(text, true))
}

// EmbedBatch generates embeddings for multiple record texts.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = s.applyPrefix(text, false)
	}

	return s.embedTexts(ctx, prefixed)
}

// Dimensions returns the embedding dimensions.
func (s *OllamaService) Dimensions() int {
	return s.dimensions
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}

func (s *OllamaService) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

// applyPrefix applies the appropriate task prefix for the model.
func (s *OllamaService) applyPrefix(text string, isQuery bool) string {
	prefixes, ok := taskPrefixes[s.model]
	if !ok {
		return text
	}

	if isQuery {
		return prefixes.query + text
	}
	return prefixes.document + text
}

// embedTexts performs the actual embedding request.
func (s *OllamaService) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateInputs(texts); err != nil {
		return nil, err
	}

	reqBody := ollamaEmbedRequest{
		Model:    s.model,
		Input:    texts,
		Truncate: true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.baseURL + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", s.model, "count", len(texts))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		s.dimensions = len(result.Embeddings[0])
	}

	return result.Embeddings, nil
}
