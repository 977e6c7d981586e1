package nutrition

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcarver/ragu/internal/store"
)

func setupAnalyzer(t *testing.T) (*Analyzer, *store.SQLiteStore, *store.Collection) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coll, err := st.CreateCollection("menus", store.ProviderOllama, "all-minilm", 4)
	require.NoError(t, err)

	return New(st, coll), st, coll
}

func insertMenu(t *testing.T, st *store.SQLiteStore, collID int64, key string, metadata map[string]any) {
	t.Helper()
	_, err := st.InsertIfAbsent(collID, store.RecordInput{
		Key:         key,
		Content:     "menu description",
		Metadata:    metadata,
		Fingerprint: "xxh64:" + key,
	}, []float32{1, 0, 0, 0})
	require.NoError(t, err)
}

func TestByNameComputesDailyPercentages(t *testing.T) {
	a, st, coll := setupAnalyzer(t)
	insertMenu(t, st, coll.ID, "Nasi Goreng", map[string]any{
		"calories": 500.0,
		"protein":  15.0,
		"fat":      21.0,
		"carbs":    60.0,
		"fiber":    3.0,
		"salt":     2.0,
		"category": "main",
		"origin":   "Jawa",
	})

	report, err := a.ByName("Nasi Goreng")
	require.NoError(t, err)

	assert.Equal(t, "Nasi Goreng", report.Menu)
	assert.Equal(t, 500.0, report.Calories.Amount)
	assert.Equal(t, "kcal", report.Calories.Unit)
	assert.Equal(t, 25.0, report.Calories.DailyPercent)
	assert.Equal(t, 30.0, report.Protein.DailyPercent)
	assert.Equal(t, 30.0, report.Fat.DailyPercent)
	assert.Equal(t, 20.0, report.Carbs.DailyPercent)
	assert.Equal(t, 3.0, report.Fiber)
	assert.Equal(t, 2.0, report.Salt)

	// Non-nutritional keys pass through untouched
	assert.Equal(t, "main", report.Attributes["category"])
	assert.Equal(t, "Jawa", report.Attributes["origin"])
	assert.NotContains(t, report.Attributes, "calories")
}

func TestByNameMatchesSubstringCaseInsensitive(t *testing.T) {
	a, st, coll := setupAnalyzer(t)
	insertMenu(t, st, coll.ID, "Gado Gado Jakarta", map[string]any{"calories": 320.0})

	report, err := a.ByName("gado")
	require.NoError(t, err)
	assert.Equal(t, "Gado Gado Jakarta", report.Menu)
}

func TestByNameNotFound(t *testing.T) {
	a, _, _ := setupAnalyzer(t)

	_, err := a.ByName("does not exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestByNamePicksFirstInsertedOnAmbiguity(t *testing.T) {
	a, st, coll := setupAnalyzer(t)
	insertMenu(t, st, coll.ID, "Soto Ayam", map[string]any{"calories": 300.0})
	insertMenu(t, st, coll.ID, "Soto Betawi", map[string]any{"calories": 450.0})

	report, err := a.ByName("soto")
	require.NoError(t, err)
	assert.Equal(t, "Soto Ayam", report.Menu)
}

func TestFromRecordMissingMetadata(t *testing.T) {
	report := FromRecord(&store.Record{Key: "Plain"})

	assert.Equal(t, "Plain", report.Menu)
	assert.Zero(t, report.Calories.Amount)
	assert.Zero(t, report.Calories.DailyPercent)
	assert.Nil(t, report.Attributes)
}

func TestDailyPercentRounding(t *testing.T) {
	report := FromRecord(&store.Record{
		Key:      "Rounded",
		Metadata: map[string]any{"fat": 23.0},
	})

	// 23 / 70 * 100 = 32.857..., rounds to 32.9
	assert.Equal(t, 32.9, report.Fat.DailyPercent)
}
