package loader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/store"
)

// stubEmbedder returns a constant-dimension vector derived from text length.
type stubEmbedder struct {
	dims  int
	calls int
}

func (m *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyInput
	}
	v := make([]float32, m.dims)
	v[0] = float32(len(text))
	return v, nil
}

func (m *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.Embed(ctx, text)
}

func (m *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
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

func (m *stubEmbedder) Dimensions() int { return m.dims }

func (m *stubEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }

func (m *stubEmbedder) ModelName() string { return "stub-model" }

func setupLoader(t *testing.T) (*Loader, *store.SQLiteStore, *stubEmbedder) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := &stubEmbedder{dims: 4}
	coll, err := st.CreateCollection("menus", store.ProviderOllama, emb.ModelName(), emb.Dimensions())
	require.NoError(t, err)

	return New(st, emb, coll), st, emb
}

func TestLoadInsertsDocuments(t *testing.T) {
	l, st, _ := setupLoader(t)

	docs := []Document{
		{Key: "Rendang", Content: "Slow-cooked beef in coconut milk", Metadata: map[string]any{"calories": 450.0}},
		{Key: "Soto Ayam", Content: "Turmeric chicken soup"},
	}

	report, err := l.Load(context.Background(), docs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Errors)

	count, err := st.Count(l.collection.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, err := st.GetByKey(l.collection.ID, "Rendang")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Fingerprint("Slow-cooked beef in coconut milk"), rec.Fingerprint)
	assert.Equal(t, 450.0, rec.Metadata["calories"])
}

func TestLoadSkipsDuplicatesByDefault(t *testing.T) {
	l, _, _ := setupLoader(t)
	ctx := context.Background()

	docs := []Document{{Key: "Rendang", Content: "original"}}
	_, err := l.Load(ctx, docs, Options{})
	require.NoError(t, err)

	report, err := l.Load(ctx, []Document{{Key: "Rendang", Content: "updated"}}, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
}

func TestLoadReplaceUpdatesExisting(t *testing.T) {
	l, st, _ := setupLoader(t)
	ctx := context.Background()

	_, err := l.Load(ctx, []Document{{Key: "Rendang", Content: "original"}}, Options{})
	require.NoError(t, err)

	report, err := l.Load(ctx, []Document{{Key: "Rendang", Content: "updated"}}, Options{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replaced)

	rec, err := st.GetByKey(l.collection.ID, "Rendang")
	require.NoError(t, err)
	assert.Equal(t, "updated", rec.Content)
}

func TestLoadReportsMalformedDocuments(t *testing.T) {
	l, st, _ := setupLoader(t)

	docs := []Document{
		{Key: "Good", Content: "fine content"},
		{Key: "NoContent"},
		{Content: "no key"},
	}

	report, err := l.Load(context.Background(), docs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Len(t, report.Errors, 2)

	count, err := st.Count(l.collection.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoadBatchesLargeInputs(t *testing.T) {
	l, st, emb := setupLoader(t)

	docs := make([]Document, 70)
	for i := range docs {
		docs[i] = Document{Key: string(rune('a' + i%26)) + string(rune('0'+i/26)), Content: "content"}
	}

	report, err := l.Load(context.Background(), docs, Options{BatchSize: 32})
	require.NoError(t, err)
	assert.Equal(t, 70, report.Inserted)
	assert.Equal(t, 3, emb.calls)

	count, err := st.Count(l.collection.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, count)
}

func TestLoadPathJSONFile(t *testing.T) {
	l, _, _ := setupLoader(t)

	docs := []Document{
		{Key: "Gado Gado", Content: "Vegetable salad with peanut sauce"},
		{Key: "Nasi Goreng", Content: "Indonesian fried rice"},
	}
	data, err := json.Marshal(docs)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "menus.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	report, err := l.LoadPath(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
}

func TestLoadPathDirectory(t *testing.T) {
	l, st, _ := setupLoader(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rendang.md"), []byte("Beef rendang notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "soto.txt"), []byte("Soto ayam notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.log"), []byte("not a document"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "drafts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drafts", "wip.md"), []byte("draft notes"), 0644))

	report, err := l.LoadPath(context.Background(), dir, Options{
		IgnorePatterns: []string{"drafts/"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)

	// Key is the file stem, source path lands in metadata
	rec, err := st.GetByKey(l.collection.ID, "rendang")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Beef rendang notes", rec.Content)
	assert.Equal(t, "rendang.md", rec.Metadata["source"])

	missing, err := st.GetByKey(l.collection.ID, "wip")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadPathMissing(t *testing.T) {
	l, _, _ := setupLoader(t)

	_, err := l.LoadPath(context.Background(), filepath.Join(t.TempDir(), "nope.json"), Options{})
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("content")
	b := Fingerprint("content")
	c := Fingerprint("different")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "xxh64:")
}
