package store

import "errors"

// ErrDimensionMismatch is returned when a vector's length disagrees with the
// collection's fixed dimension. The write is rejected whole; the store never
// truncates or pads.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store defines the interface for record storage and similarity search.
type Store interface {
	// Collection management
	CreateCollection(name string, provider Provider, model string, dimensions int) (*Collection, error)
	GetCollection(name string) (*Collection, error)
	ListCollections() ([]Collection, error)
	UpdateCollectionTimestamp(id int64) error

	// Record writes
	InsertIfAbsent(collectionID int64, rec RecordInput, embedding []float32) (bool, error)
	Replace(collectionID int64, rec RecordInput, embedding []float32) error
	LoadBatch(collectionID int64, recs []RecordInput, embeddings [][]float32, replace bool) (*LoadReport, error)

	// Reads
	GetByKey(collectionID int64, key string) (*Record, error)
	FindByKeyLike(collectionID int64, name string) (*Record, error)
	QueryTopK(collectionID int64, embedding []float32, k int) ([]ScoredRecord, error)
	Count(collectionID int64) (int, error)

	// Maintenance
	Clear(collectionID int64) error
	Close() error
}
