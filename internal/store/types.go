// Package store provides record persistence and nearest-neighbor retrieval
// using SQLite and sqlite-vec.
package store

import "time"

// Provider represents the embedding provider a collection was built with.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Collection represents a set of records sharing one embedding space.
// The vector dimension is fixed when the collection is created and every
// record written to it must match.
type Collection struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	EmbeddingProvider   Provider  `json:"embedding_provider"`
	EmbeddingModel      string    `json:"embedding_model"`
	EmbeddingDimensions int       `json:"embedding_dimensions"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Record is the unit of retrieval: a natural key, the retrievable body text,
// and optional domain metadata (nutritional values in the menu deployment).
type Record struct {
	ID           int64          `json:"id"`
	CollectionID int64          `json:"collection_id"`
	Key          string         `json:"key"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Fingerprint  string         `json:"fingerprint"` // xxh64:... content hash
	CreatedAt    time.Time      `json:"created_at"`
}

// RecordInput is the write-side shape of a record.
type RecordInput struct {
	Key         string         `json:"key"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Fingerprint string         `json:"fingerprint"`
}

// ScoredRecord is a query result with its cosine distance and the derived
// similarity score (1 - distance, so 1 means identical).
type ScoredRecord struct {
	Record   Record  `json:"record"`
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}

// LoadError identifies a record that could not be loaded and why.
type LoadError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// LoadReport summarizes a batch load. A batch never aborts because one
// record is malformed; failed records land in Errors instead.
type LoadReport struct {
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
	Replaced int         `json:"replaced"`
	Errors   []LoadError `json:"errors,omitempty"`
}
