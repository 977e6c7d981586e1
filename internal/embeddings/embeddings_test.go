package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelDimensions(t *testing.T) {
	assert.Equal(t, 384, GetModelDimensions("all-minilm"))
	assert.Equal(t, 768, GetModelDimensions("nomic-embed-text"))
	assert.Equal(t, 1536, GetModelDimensions("text-embedding-3-small"))
	assert.Equal(t, 0, GetModelDimensions("unknown-model"))
}

func TestValidateInputs(t *testing.T) {
	assert.NoError(t, validateInputs([]string{"hello", "world"}))
	assert.ErrorIs(t, validateInputs([]string{"hello", ""}), ErrEmptyInput)
	assert.ErrorIs(t, validateInputs([]string{""}), ErrEmptyInput)
}

func TestOllamaApplyPrefix(t *testing.T) {
	svc, err := NewOllamaService("", "nomic-embed-text")
	require.NoError(t, err)

	assert.Equal(t, "search_document: menu text", svc.applyPrefix("menu text", false))
	assert.Equal(t, "search_query: spicy food", svc.applyPrefix("spicy food", true))

	// Models without prefixes pass text through
	plain, err := NewOllamaService("", "all-minilm")
	require.NoError(t, err)
	assert.Equal(t, "menu text", plain.applyPrefix("menu text", false))
}

func TestOllamaEmbedBatch(t *testing.T) {
	var gotReq ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := ollamaEmbedResponse{
			Embeddings: make([][]float32, len(gotReq.Input)),
		}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{0.1, 0.2, 0.3, 0.4}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "all-minilm")
	require.NoError(t, err)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"nasi goreng", "rendang"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)
	assert.Equal(t, []string{"nasi goreng", "rendang"}, gotReq.Input)

	// Dimensions update from the observed response
	assert.Equal(t, 4, svc.Dimensions())
}

func TestOllamaEmbedEmptyInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty input must not reach the model")
	}))
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "all-minilm")
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOllamaEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "all-minilm")
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewOpenAIServiceRequiresKey(t *testing.T) {
	_, err := NewOpenAIService("", "text-embedding-3-small", "", 0)
	require.Error(t, err)
}

func TestNewOpenAIServiceDimensions(t *testing.T) {
	svc, err := NewOpenAIService("test-key", "text-embedding-3-large", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, svc.Dimensions())

	// Explicit dimensions win over the model table
	svc, err = NewOpenAIService("test-key", "text-embedding-3-large", "", 256)
	require.NoError(t, err)
	assert.Equal(t, 256, svc.Dimensions())
}
