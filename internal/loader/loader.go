// Package loader bulk-loads records into a collection from JSON files or
// directories of plain-text documents.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/store"
)

// Document is one loadable record before embedding.
type Document struct {
	Key      string         `json:"key"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Options configures a load.
type Options struct {
	// Replace updates existing keys instead of skipping them.
	Replace bool

	// IgnorePatterns are gitignore-syntax patterns applied when loading a
	// directory.
	IgnorePatterns []string

	// BatchSize bounds how many documents are embedded per call.
	BatchSize int
}

// DefaultBatchSize bounds one embedding request. Providers cap batch sizes,
// and smaller batches keep progress visible on large loads.
const DefaultBatchSize = 32

// Loader embeds documents and writes them to a collection.
type Loader struct {
	store      store.Store
	embedder   embeddings.Service
	collection *store.Collection
}

// New creates a Loader for the given collection.
func New(st store.Store, emb embeddings.Service, coll *store.Collection) *Loader {
	return &Loader{
		store:      st,
		embedder:   emb,
		collection: coll,
	}
}

// LoadPath loads records from a path: a .json file is read as a document
// array, a directory is walked for .txt and .md files.
func (l *Loader) LoadPath(ctx context.Context, path string, opts Options) (*store.LoadReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var docs []Document
	if info.IsDir() {
		docs, err = readDirectory(path, opts.IgnorePatterns)
	} else {
		docs, err = readJSONFile(path)
	}
	if err != nil {
		return nil, err
	}

	return l.Load(ctx, docs, opts)
}

// Load embeds the documents and writes them in batches. Per-document
// failures are reported in the returned LoadReport, never aborting the
// batch. A skipped duplicate whose content differs from the stored record
// is logged so stale content is visible.
func (l *Loader) Load(ctx context.Context, docs []Document, opts Options) (*store.LoadReport, error) {
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	report := &store.LoadReport{}
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		if err := l.loadBatch(ctx, docs[start:end], opts.Replace, report); err != nil {
			return report, err
		}
	}

	log.Info("Load complete",
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"replaced", report.Replaced,
		"errors", len(report.Errors))
	return report, nil
}

func (l *Loader) loadBatch(ctx context.Context, docs []Document, replace bool, report *store.LoadReport) error {
	recs := make([]store.RecordInput, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Key == "" || d.Content == "" {
			report.Errors = append(report.Errors, store.LoadError{
				Key:    d.Key,
				Reason: "document needs both a key and content",
			})
			continue
		}
		recs = append(recs, store.RecordInput{
			Key:         d.Key,
			Content:     d.Content,
			Metadata:    d.Metadata,
			Fingerprint: Fingerprint(d.Content),
		})
		texts = append(texts, d.Content)
	}
	if len(recs) == 0 {
		return nil
	}

	vectors, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}

	batchReport, err := l.store.LoadBatch(l.collection.ID, recs, vectors, replace)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	if batchReport.Skipped > 0 && !replace {
		l.warnStaleDuplicates(recs)
	}

	report.Inserted += batchReport.Inserted
	report.Skipped += batchReport.Skipped
	report.Replaced += batchReport.Replaced
	report.Errors = append(report.Errors, batchReport.Errors...)
	return nil
}

// warnStaleDuplicates logs skipped keys whose incoming content differs from
// what is stored. Skip-on-conflict silently drops updates; the warning makes
// that visible without changing the default behavior.
func (l *Loader) warnStaleDuplicates(recs []store.RecordInput) {
	for _, rec := range recs {
		existing, err := l.store.GetByKey(l.collection.ID, rec.Key)
		if err != nil || existing == nil {
			continue
		}
		if existing.Fingerprint != rec.Fingerprint {
			log.Warn("Skipped existing record with changed content, use --replace to update",
				"key", rec.Key)
		}
	}
}

// Fingerprint computes the content hash stored with each record.
func Fingerprint(content string) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64String(content))
}

// readJSONFile parses a JSON array of documents.
func readJSONFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return docs, nil
}

// readDirectory collects .txt and .md files under root, one document per
// file with the file stem as the key.
func readDirectory(root string, ignorePatterns []string) ([]Document, error) {
	ignorer := gitignore.CompileIgnoreLines(ignorePatterns...)

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignorer.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		if ignorer.MatchesPath(rel) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warn("Skipping unreadable file", "path", path, "error", readErr)
			return nil
		}

		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil
		}

		docs = append(docs, Document{
			Key:     strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Content: content,
			Metadata: map[string]any{
				"source": rel,
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return docs, nil
}
