package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/llm"
	"github.com/pcarver/ragu/internal/store"
)

// fixedEmbedder maps known texts to fixed vectors for predictable ranking.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (m *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyInput
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (m *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.Embed(ctx, text)
}

func (m *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (m *fixedEmbedder) Dimensions() int               { return 4 }
func (m *fixedEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (m *fixedEmbedder) ModelName() string             { return "fixed-model" }

// scriptedLLM records calls and returns a canned answer or error.
type scriptedLLM struct {
	name    string
	answer  string
	err     error
	calls   int
	lastMsg []llm.Message
}

func (s *scriptedLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	s.calls++
	s.lastMsg = messages
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *scriptedLLM) Provider() llm.Provider { return llm.ProviderOllama }
func (s *scriptedLLM) ModelName() string      { return s.name }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retrieval.TopK = 3
	cfg.Retrieval.MinScore = 0
	cfg.Retrieval.PreviewChars = 200
	cfg.Retrieval.MaxContextRecords = 5
	return cfg
}

func setupPipeline(t *testing.T, emb embeddings.Service, primary, fallback llm.Service) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coll, err := st.CreateCollection("menus", store.ProviderOllama, emb.ModelName(), emb.Dimensions())
	require.NoError(t, err)

	return NewWithServices(st, emb, coll, primary, fallback, testConfig()), st
}

func seedRecords(t *testing.T, st *store.SQLiteStore, emb embeddings.Service, p *Pipeline, records map[string]string) {
	t.Helper()
	ctx := context.Background()
	for key, content := range records {
		vec, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		_, err = st.InsertIfAbsent(p.Collection().ID,
			store.RecordInput{Key: key, Content: content, Fingerprint: "xxh64:" + key}, vec)
		require.NoError(t, err)
	}
}

func TestQueryReturnsStructuredResult(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"beef rendang in coconut milk": {1, 0, 0, 0},
		"turmeric chicken soup":        {0, 1, 0, 0},
		"spicy beef stew":              {0.9, 0.1, 0, 0},
	}}
	p, st := setupPipeline(t, emb, &scriptedLLM{name: "primary"}, nil)
	seedRecords(t, st, emb, p, map[string]string{
		"Rendang":   "beef rendang in coconut milk",
		"Soto Ayam": "turmeric chicken soup",
	})

	result := p.Query(context.Background(), "spicy beef stew", 2)

	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, "spicy beef stew", result.Query)
	assert.Equal(t, 2, result.NumResults)
	require.Len(t, result.RetrievedItems, 2)
	assert.Equal(t, "Rendang", result.RetrievedItems[0].Label)
	assert.Contains(t, result.Context, "beef rendang in coconut milk")
	assert.Contains(t, result.Context, "turmeric chicken soup")
}

func TestQueryFailureIsCaught(t *testing.T) {
	p, _ := setupPipeline(t, &fixedEmbedder{}, &scriptedLLM{name: "primary"}, nil)

	result := p.Query(context.Background(), "", 3)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.RetrievedItems)
	assert.Empty(t, result.Context)
	assert.Zero(t, result.NumResults)
}

func TestQueryUsesConfiguredTopKWhenUnset(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{"q": {1, 0, 0, 0}}}
	p, st := setupPipeline(t, emb, &scriptedLLM{name: "primary"}, nil)

	records := map[string]string{}
	for i := 0; i < 5; i++ {
		records[fmt.Sprintf("menu-%d", i)] = fmt.Sprintf("content %d", i)
	}
	seedRecords(t, st, emb, p, records)

	result := p.Query(context.Background(), "q", 0)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.NumResults)
}

func TestAskGeneratesFromContext(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"beef rendang in coconut milk": {1, 0, 0, 0},
		"what is rendang":              {1, 0, 0, 0},
	}}
	primary := &scriptedLLM{name: "primary", answer: "Rendang is slow-cooked beef."}
	p, st := setupPipeline(t, emb, primary, nil)
	seedRecords(t, st, emb, p, map[string]string{"Rendang": "beef rendang in coconut milk"})

	result := p.Ask(context.Background(), "what is rendang", 3)

	assert.True(t, result.Success)
	assert.Equal(t, "Rendang is slow-cooked beef.", result.Answer)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, primary.calls)

	// The question and the retrieved context both reach the model
	require.Len(t, primary.lastMsg, 2)
	assert.Contains(t, primary.lastMsg[1].Content, "beef rendang in coconut milk")
	assert.Contains(t, primary.lastMsg[1].Content, "what is rendang")
}

func TestAskEmptyContextSkipsGenerator(t *testing.T) {
	primary := &scriptedLLM{name: "primary", answer: "should never appear"}
	p, _ := setupPipeline(t, &fixedEmbedder{}, primary, nil)

	result := p.Ask(context.Background(), "anything at all", 3)

	assert.True(t, result.Success)
	assert.Zero(t, result.NumResults)
	assert.Equal(t, noInformationAnswer, result.Answer)
	assert.Zero(t, primary.calls, "generator must not be called with empty context")
}

func TestAskFallsBackOnce(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"doc": {1, 0, 0, 0},
		"q":   {1, 0, 0, 0},
	}}
	primary := &scriptedLLM{name: "primary", err: llm.ErrGeneration}
	fallback := &scriptedLLM{name: "fallback", answer: "answer from fallback"}
	p, st := setupPipeline(t, emb, primary, fallback)
	seedRecords(t, st, emb, p, map[string]string{"Doc": "doc"})

	result := p.Ask(context.Background(), "q", 3)

	assert.True(t, result.Success)
	assert.Equal(t, "answer from fallback", result.Answer)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAskUnavailableWhenBothModelsFail(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"doc": {1, 0, 0, 0},
		"q":   {1, 0, 0, 0},
	}}
	primary := &scriptedLLM{name: "primary", err: llm.ErrGeneration}
	fallback := &scriptedLLM{name: "fallback", err: errors.New("also down")}
	p, st := setupPipeline(t, emb, primary, fallback)
	seedRecords(t, st, emb, p, map[string]string{"Doc": "doc"})

	result := p.Ask(context.Background(), "q", 3)

	// Retrieval succeeded, so the result is not a failure; the answer is the
	// fixed unavailable response.
	assert.True(t, result.Success)
	assert.Equal(t, unavailableAnswer, result.Answer)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAskNoFallbackConfigured(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"doc": {1, 0, 0, 0},
		"q":   {1, 0, 0, 0},
	}}
	primary := &scriptedLLM{name: "primary", err: llm.ErrGeneration}
	p, st := setupPipeline(t, emb, primary, nil)
	seedRecords(t, st, emb, p, map[string]string{"Doc": "doc"})

	result := p.Ask(context.Background(), "q", 3)

	assert.Equal(t, unavailableAnswer, result.Answer)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, primary.calls)
}
