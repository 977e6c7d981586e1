// Package pipeline runs the full question-answering pass: encode the query,
// retrieve similar records, compose their context, and generate an answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/llm"
	"github.com/pcarver/ragu/internal/retrieval"
	"github.com/pcarver/ragu/internal/store"
)

// Stage identifies where in the pass a query currently is. It is recorded
// on failures so logs name the failing component.
type Stage string

const (
	StageEncoding   Stage = "encoding"
	StageRetrieving Stage = "retrieving"
	StageComposing  Stage = "composing"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Answers used when generation is skipped or unavailable. The pipeline never
// calls the generative model with an empty context and never propagates a
// raw generation error to the caller.
const (
	noInformationAnswer = "No relevant information was found for this question."
	unavailableAnswer   = "The answer service is currently unavailable. Please try again later."
)

const systemPrompt = "You are a helpful assistant answering questions about a menu knowledge base. " +
	"Answer using only the provided context. If the context does not contain the answer, say so plainly."

// RetrievedItem is one retrieved record as exposed through the tool contract:
// an identifying label, a similarity score, and a truncated preview.
type RetrievedItem struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// QueryResult is the structured result of a retrieval pass. On failure all
// collection fields are empty and Success is false with a readable Error.
type QueryResult struct {
	Query          string          `json:"query"`
	RetrievedItems []RetrievedItem `json:"retrieved_items"`
	Context        string          `json:"context"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	NumResults     int             `json:"num_results"`
}

// AskResult extends QueryResult with the generated answer.
type AskResult struct {
	QueryResult
	Answer       string `json:"answer"`
	FallbackUsed bool   `json:"fallback_used,omitempty"`
}

// Pipeline owns one store session plus the services needed for a query pass.
// It is constructed once and released with Close.
type Pipeline struct {
	store      store.Store
	collection *store.Collection
	engine     *retrieval.Engine
	composer   *retrieval.Composer
	primary    llm.Service
	fallback   llm.Service
	topK       int
	minScore   float64

	// ownsStore marks sessions opened by New rather than injected.
	ownsStore bool
}

// New constructs a pipeline from configuration. Construction failures are
// fatal: an unreachable store or missing collection aborts immediately.
func New(cfg *config.Config) (*Pipeline, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	coll, err := st.GetCollection(cfg.Retrieval.Collection)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}
	if coll == nil {
		st.Close()
		return nil, fmt.Errorf("collection %q does not exist, load records first", cfg.Retrieval.Collection)
	}

	emb, err := embeddings.NewServiceForCollection(string(coll.EmbeddingProvider), coll.EmbeddingModel, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	primary, err := llm.NewService(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create LLM service: %w", err)
	}

	fallback, err := llm.NewFallbackService(cfg)
	if err != nil {
		// A broken fallback is not fatal, the primary may never fail.
		log.Warn("Fallback LLM unavailable", "error", err)
		fallback = nil
	}

	p := NewWithServices(st, emb, coll, primary, fallback, cfg)
	p.ownsStore = true
	return p, nil
}

// NewWithServices constructs a pipeline from already-built collaborators.
// The caller keeps ownership of the store session.
func NewWithServices(st store.Store, emb embeddings.Service, coll *store.Collection, primary, fallback llm.Service, cfg *config.Config) *Pipeline {
	topK := cfg.Retrieval.TopK
	if topK < 1 {
		topK = config.DefaultTopK
	}

	return &Pipeline{
		store:      st,
		collection: coll,
		engine:     retrieval.New(st, emb, coll),
		composer:   retrieval.NewComposer(cfg.Retrieval.PreviewChars, cfg.Retrieval.MaxContextRecords),
		primary:    primary,
		fallback:   fallback,
		topK:       topK,
		minScore:   cfg.Retrieval.MinScore,
	}
}

// Collection returns the collection this pipeline queries.
func (p *Pipeline) Collection() *store.Collection {
	return p.collection
}

// Store returns the store session this pipeline holds.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Query runs the retrieval half of the pass and returns the tool-contract
// result. Every failure is converted into a success=false result; callers
// never see a raw error.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) *QueryResult {
	if topK < 1 {
		topK = p.topK
	}

	results, err := p.engine.Retrieve(ctx, question, retrieval.Options{TopK: topK, MinScore: p.minScore})
	if err != nil {
		stage := StageRetrieving
		if errors.Is(err, embeddings.ErrEmptyInput) {
			stage = StageEncoding
		}
		log.Error("Query failed", "stage", stage, "error", err)
		return &QueryResult{
			Query:   question,
			Success: false,
			Error:   err.Error(),
		}
	}

	composed := p.composer.Compose(results)

	items := make([]RetrievedItem, 0, len(results))
	for _, r := range results {
		items = append(items, RetrievedItem{
			Label:   r.Key,
			Score:   r.Score,
			Preview: p.composer.Preview(r.Content),
		})
	}

	log.Debug("Query complete", "stage", StageDone, "results", len(items))
	return &QueryResult{
		Query:          question,
		RetrievedItems: items,
		Context:        composed,
		Success:        true,
		NumResults:     len(items),
	}
}

// Ask runs the full pass including answer generation. With an empty context
// the generator is never called and a fixed no-information answer is
// returned. A primary generation failure is retried once against the
// fallback model; a second failure yields a generic unavailable answer.
func (p *Pipeline) Ask(ctx context.Context, question string, topK int) *AskResult {
	qr := p.Query(ctx, question, topK)
	if !qr.Success {
		return &AskResult{QueryResult: *qr}
	}

	if qr.NumResults == 0 {
		log.Debug("Empty context, skipping generation")
		return &AskResult{QueryResult: *qr, Answer: noInformationAnswer}
	}

	answer, fallbackUsed, err := p.generate(ctx, question, qr.Context)
	if err != nil {
		log.Error("Generation failed on all models", "stage", StageGenerating, "error", err)
		return &AskResult{QueryResult: *qr, Answer: unavailableAnswer, FallbackUsed: fallbackUsed}
	}

	return &AskResult{QueryResult: *qr, Answer: answer, FallbackUsed: fallbackUsed}
}

// generate calls the primary model and retries once against the fallback.
func (p *Pipeline) generate(ctx context.Context, question, contextText string) (string, bool, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
	}
	opts := llm.DefaultCompletionOptions()

	answer, err := p.primary.Complete(ctx, messages, opts)
	if err == nil {
		return answer, false, nil
	}

	if p.fallback == nil {
		return "", false, err
	}

	log.Warn("Primary model failed, retrying with fallback",
		"primary", p.primary.ModelName(), "fallback", p.fallback.ModelName(), "error", err)

	answer, fbErr := p.fallback.Complete(ctx, messages, opts)
	if fbErr != nil {
		return "", true, fmt.Errorf("primary: %v, fallback: %w", err, fbErr)
	}
	return answer, true, nil
}

// Close releases the store session when this pipeline opened it.
func (p *Pipeline) Close() error {
	if !p.ownsStore {
		return nil
	}
	return p.store.Close()
}
