// Package retrieval answers "top-k most similar records to this query text"
// over a single collection.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/store"
)

// ErrInvalidTopK is returned for a non-positive k.
var ErrInvalidTopK = errors.New("top-k must be a positive integer")

// ErrEmptyQuery is returned for an empty query string.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Engine retrieves records by semantic similarity. It is a pure composition
// of the embedder and the store and keeps no state of its own beyond the
// collection it serves.
type Engine struct {
	store      store.Store
	embedder   embeddings.Service
	collection *store.Collection
}

// Result is one retrieved record with its similarity to the query.
type Result struct {
	Key      string         `json:"key"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`    // 1 - distance, higher is better
	Distance float64        `json:"distance"` // cosine distance
}

// Options configures a retrieval.
type Options struct {
	// TopK is the maximum number of results to return. Must be >= 1.
	TopK int

	// MinScore filters results below this similarity score.
	MinScore float64
}

// New creates an Engine over the given collection.
func New(st store.Store, emb embeddings.Service, coll *store.Collection) *Engine {
	return &Engine{
		store:      st,
		embedder:   emb,
		collection: coll,
	}
}

// Collection returns the collection this engine serves.
func (e *Engine) Collection() *store.Collection {
	return e.collection
}

// Retrieve embeds the query and returns up to opts.TopK records ranked by
// descending similarity. An empty collection produces an empty result set;
// callers must treat "no results" as a valid outcome, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if opts.TopK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, opts.TopK)
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	queryEmbedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	log.Debug("Querying collection", "collection", e.collection.Name, "topK", opts.TopK)
	scored, err := e.store.QueryTopK(e.collection.ID, queryEmbedding, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	var results []Result
	for _, sr := range scored {
		if sr.Score < opts.MinScore {
			continue
		}
		results = append(results, Result{
			Key:      sr.Record.Key,
			Content:  sr.Record.Content,
			Metadata: sr.Record.Metadata,
			Score:    sr.Score,
			Distance: sr.Distance,
		})
	}

	log.Debug("Retrieval complete", "results", len(results))
	return results, nil
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
