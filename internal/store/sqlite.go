package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	sqlite3 "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore implements the Store interface using SQLite and sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store at the given path. A connection
// failure here is fatal to the caller; there is no retry.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite store", "path", dbPath)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCollection creates a new collection with a fixed embedding dimension.
func (s *SQLiteStore) CreateCollection(name string, provider Provider, model string, dimensions int) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", dimensions)
	}

	if err := ensureVectorTable(s.db, dimensions); err != nil {
		return nil, fmt.Errorf("failed to ensure vector table: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		INSERT INTO collections (name, embedding_provider, embedding_model, embedding_dimensions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, string(provider), model, dimensions, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get collection ID: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, now)
	return &Collection{
		ID:                  id,
		Name:                name,
		EmbeddingProvider:   provider,
		EmbeddingModel:      model,
		EmbeddingDimensions: dimensions,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}, nil
}

// GetCollection retrieves a collection by name. Returns nil if not found.
func (s *SQLiteStore) GetCollection(name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Collection
	var createdAt, updatedAt string
	var provider string

	err := s.db.QueryRow(`
		SELECT id, name, embedding_provider, embedding_model, embedding_dimensions, created_at, updated_at
		FROM collections WHERE name = ?
	`, name).Scan(
		&c.ID, &c.Name, &provider, &c.EmbeddingModel, &c.EmbeddingDimensions,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	c.EmbeddingProvider = Provider(provider)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &c, nil
}

// ListCollections returns all collections.
func (s *SQLiteStore) ListCollections() ([]Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, embedding_provider, embedding_model, embedding_dimensions, created_at, updated_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		var createdAt, updatedAt string
		var provider string

		if err := rows.Scan(
			&c.ID, &c.Name, &provider, &c.EmbeddingModel, &c.EmbeddingDimensions,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}

		c.EmbeddingProvider = Provider(provider)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		collections = append(collections, c)
	}

	return collections, rows.Err()
}

// UpdateCollectionTimestamp updates the collection's updated_at timestamp.
func (s *SQLiteStore) UpdateCollectionTimestamp(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec("UPDATE collections SET updated_at = ? WHERE id = ?", now, id)
	return err
}

// InsertIfAbsent inserts a record only if its key is not already present in
// the collection. Returns whether an insertion occurred. A duplicate key is a
// skip, never an error and never an overwrite; the first successful insert
// wins even under concurrent load (enforced by the UNIQUE constraint).
func (s *SQLiteStore) InsertIfAbsent(collectionID int64, rec RecordInput, embedding []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims, err := s.collectionDimensions(collectionID)
	if err != nil {
		return false, err
	}
	if len(embedding) != dims {
		return false, fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(embedding), dims)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow("SELECT id FROM records WHERE collection_id = ? AND key = ?", collectionID, rec.Key).Scan(&existingID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to check existing record: %w", err)
	}

	if err := insertRecordTx(tx, collectionID, rec, embedding); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			// Lost a race to another writer; the earlier insert wins.
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}

	return true, nil
}

// Replace inserts the record or overwrites an existing record's content,
// metadata, fingerprint, and vector. The original created_at is preserved on
// overwrite. This is the explicit refresh path; bulk loads default to
// InsertIfAbsent.
func (s *SQLiteStore) Replace(collectionID int64, rec RecordInput, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims, err := s.collectionDimensions(collectionID)
	if err != nil {
		return err
	}
	if len(embedding) != dims {
		return fmt.Errorf("%w: got %d, collection expects %d", ErrDimensionMismatch, len(embedding), dims)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow("SELECT id FROM records WHERE collection_id = ? AND key = ?", collectionID, rec.Key).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing record: %w", err)
	}

	if existingID > 0 {
		metadataJSON, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			UPDATE records SET content = ?, metadata = ?, fingerprint = ?
			WHERE id = ?
		`, rec.Content, metadataJSON, rec.Fingerprint, existingID)
		if err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}

		if _, err = tx.Exec("DELETE FROM record_vectors WHERE record_id = ?", existingID); err != nil {
			return fmt.Errorf("failed to delete old vector: %w", err)
		}
		_, err = tx.Exec("INSERT INTO record_vectors (record_id, collection_id, embedding) VALUES (?, ?, ?)",
			existingID, collectionID, serializeEmbedding(embedding))
		if err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	} else {
		if err := insertRecordTx(tx, collectionID, rec, embedding); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadBatch applies InsertIfAbsent (or Replace) per record, continuing past
// individual failures. Malformed records are reported, not fatal to the
// batch.
func (s *SQLiteStore) LoadBatch(collectionID int64, recs []RecordInput, embeddings [][]float32, replace bool) (*LoadReport, error) {
	if len(recs) != len(embeddings) {
		return nil, fmt.Errorf("records and embeddings count mismatch: %d != %d", len(recs), len(embeddings))
	}

	report := &LoadReport{}
	for i, rec := range recs {
		if replace {
			if err := s.Replace(collectionID, rec, embeddings[i]); err != nil {
				report.Errors = append(report.Errors, LoadError{Key: rec.Key, Reason: err.Error()})
				continue
			}
			report.Replaced++
			continue
		}

		inserted, err := s.InsertIfAbsent(collectionID, rec, embeddings[i])
		if err != nil {
			report.Errors = append(report.Errors, LoadError{Key: rec.Key, Reason: err.Error()})
			continue
		}
		if inserted {
			report.Inserted++
		} else {
			report.Skipped++
		}
	}

	log.Debug("Batch load complete",
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"replaced", report.Replaced,
		"errors", len(report.Errors),
	)

	return report, nil
}

// GetByKey retrieves a record by its natural key. Returns nil if not found.
func (s *SQLiteStore) GetByKey(collectionID int64, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	var createdAt string
	var metadataJSON sql.NullString

	err := s.db.QueryRow(`
		SELECT id, collection_id, key, content, metadata, fingerprint, created_at
		FROM records WHERE collection_id = ? AND key = ?
	`, collectionID, key).Scan(
		&rec.ID, &rec.CollectionID, &rec.Key, &rec.Content,
		&metadataJSON, &rec.Fingerprint, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if rec.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}

	return &rec, nil
}

// FindByKeyLike retrieves the first record whose key contains name,
// case-insensitively, in insertion order. Returns nil if nothing matches.
func (s *SQLiteStore) FindByKeyLike(collectionID int64, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	var createdAt string
	var metadataJSON sql.NullString

	err := s.db.QueryRow(`
		SELECT id, collection_id, key, content, metadata, fingerprint, created_at
		FROM records
		WHERE collection_id = ? AND key LIKE '%' || ? || '%'
		ORDER BY id ASC LIMIT 1
	`, collectionID, name).Scan(
		&rec.ID, &rec.CollectionID, &rec.Key, &rec.Content,
		&metadataJSON, &rec.Fingerprint, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if rec.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}

	return &rec, nil
}

// QueryTopK performs a cosine-similarity search, returning at most k records
// ordered by descending similarity. Ties break by insertion order (ascending
// record id) so results stay deterministic. An empty collection yields an
// empty result set, not an error.
func (s *SQLiteStore) QueryTopK(collectionID int64, embedding []float32, k int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryBlob := serializeEmbedding(embedding)

	// The partition key scopes the KNN scan to this collection, so k rows
	// come from the right collection. A modest over-fetch keeps the
	// distance-then-id tie-break deterministic at the k boundary.
	kForVec := k * 4
	if kForVec > 1000 {
		kForVec = 1000
	}
	rows, err := s.db.Query(`
		SELECT
			r.id, r.collection_id, r.key, r.content, r.metadata, r.fingerprint, r.created_at,
			rv.distance
		FROM record_vectors rv
		JOIN records r ON r.id = rv.record_id
		WHERE rv.collection_id = ?
			AND rv.embedding MATCH ?
			AND k = ?
		ORDER BY rv.distance ASC, r.id ASC
		LIMIT ?
	`, collectionID, queryBlob, kForVec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var results []ScoredRecord
	for rows.Next() {
		var sr ScoredRecord
		var createdAt string
		var metadataJSON sql.NullString

		if err := rows.Scan(
			&sr.Record.ID, &sr.Record.CollectionID, &sr.Record.Key,
			&sr.Record.Content, &metadataJSON, &sr.Record.Fingerprint, &createdAt,
			&sr.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		sr.Record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if sr.Record.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}
		sr.Score = 1 - sr.Distance // Convert distance to similarity

		results = append(results, sr)
	}

	return results, rows.Err()
}

// Count returns the number of records in a collection.
func (s *SQLiteStore) Count(collectionID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records WHERE collection_id = ?", collectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Clear removes all records and vectors from a collection. This is the
// maintenance clear-and-reload path, not part of the retrieval hot path.
func (s *SQLiteStore) Clear(collectionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM record_vectors WHERE collection_id = ?", collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	_, err = s.db.Exec("DELETE FROM records WHERE collection_id = ?", collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	return nil
}

// collectionDimensions looks up the fixed dimension for a collection.
func (s *SQLiteStore) collectionDimensions(collectionID int64) (int, error) {
	var dims int
	err := s.db.QueryRow("SELECT embedding_dimensions FROM collections WHERE id = ?", collectionID).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("collection %d not found", collectionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get collection dimensions: %w", err)
	}
	return dims, nil
}

// insertRecordTx inserts the record row and its vector within tx.
func insertRecordTx(tx *sql.Tx, collectionID int64, rec RecordInput, embedding []float32) error {
	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.Exec(`
		INSERT INTO records (collection_id, key, content, metadata, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, collectionID, rec.Key, rec.Content, metadataJSON, rec.Fingerprint, now)
	if err != nil {
		return fmt.Errorf("failed to insert record %q: %w", rec.Key, err)
	}

	recordID, _ := result.LastInsertId()

	_, err = tx.Exec("INSERT INTO record_vectors (record_id, collection_id, embedding) VALUES (?, ?, ?)",
		recordID, collectionID, serializeEmbedding(embedding))
	if err != nil {
		return fmt.Errorf("failed to insert vector for %q: %w", rec.Key, err)
	}

	return nil
}

// marshalMetadata encodes metadata as JSON, or NULL when empty.
func marshalMetadata(metadata map[string]any) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

// unmarshalMetadata decodes the metadata column.
func unmarshalMetadata(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
