package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	embedding_provider TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding_dimensions INTEGER NOT NULL,
	created_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT DEFAULT (datetime('now'))
);
`

const recordsTable = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT,
	fingerprint TEXT NOT NULL,
	created_at TEXT DEFAULT (datetime('now')),
	UNIQUE(collection_id, key)
);

CREATE INDEX IF NOT EXISTS idx_records_collection_id ON records(collection_id);
CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON records(collection_id, fingerprint);
`

// createVectorTable creates the sqlite-vec virtual table for the given
// dimensions. Cosine distance is the collection's similarity metric; scores
// surfaced to callers are 1 - distance. collection_id is a vec0 partition
// key so KNN queries select their k nearest within one collection, not
// across the whole table.
func createVectorTable(db *sql.DB, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS record_vectors USING vec0(
			record_id INTEGER PRIMARY KEY,
			collection_id INTEGER PARTITION KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimensions)

	_, err := db.Exec(query)
	return err
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{collectionsTable, recordsTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// The vector table is created when the first collection is, since its
	// dimension comes from the encoder in use.

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

var vectorDimensionsPattern = regexp.MustCompile(`float\[(\d+)\]`)

// ensureVectorTable ensures the vector table exists with the correct
// dimensions. The dimension is fixed for the lifetime of the database, so a
// collection that needs a different one is rejected here, before any record
// write can fail against the vector index.
func ensureVectorTable(db *sql.DB, dimensions int) error {
	var tableSQL string
	err := db.QueryRow(`
		SELECT sql FROM sqlite_master
		WHERE type='table' AND name='record_vectors'
	`).Scan(&tableSQL)

	if err == sql.ErrNoRows {
		log.Debug("Creating vector table", "dimensions", dimensions)
		return createVectorTable(db, dimensions)
	} else if err != nil {
		return fmt.Errorf("failed to check vector table: %w", err)
	}

	match := vectorDimensionsPattern.FindStringSubmatch(tableSQL)
	if match == nil {
		return fmt.Errorf("vector table has no declared dimension: %s", tableSQL)
	}
	existing, err := strconv.Atoi(match[1])
	if err != nil {
		return fmt.Errorf("failed to parse vector table dimension: %w", err)
	}
	if existing != dimensions {
		return fmt.Errorf("%w: database stores float[%d] vectors, collection requires float[%d]",
			ErrDimensionMismatch, existing, dimensions)
	}

	return nil
}
