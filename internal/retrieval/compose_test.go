package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeEmptyInput(t *testing.T) {
	c := NewComposer(200, 5)
	assert.Equal(t, "", c.Compose(nil))
	assert.Equal(t, "", c.Compose([]Result{}))
}

func TestComposePreservesRankOrder(t *testing.T) {
	c := NewComposer(200, 5)

	results := []Result{
		{Key: "Rendang", Content: "Slow-cooked beef in coconut milk", Score: 0.9},
		{Key: "Soto Ayam", Content: "Turmeric chicken soup", Score: 0.7},
	}

	context := c.Compose(results)

	blocks := strings.Split(context, "\n\n")
	assert.Len(t, blocks, 2)
	assert.Equal(t, "Menu: Rendang\nSlow-cooked beef in coconut milk", blocks[0])
	assert.Equal(t, "Menu: Soto Ayam\nTurmeric chicken soup", blocks[1])
}

func TestComposeIncludesMetadata(t *testing.T) {
	c := NewComposer(200, 5)

	results := []Result{{
		Key:     "Gado Gado",
		Content: "Vegetable salad with peanut sauce",
		Metadata: map[string]any{
			"calories":     float64(320),
			"category":     "salad",
			"suitable_for": []any{"lunch", "dinner"},
		},
	}}

	context := c.Compose(results)

	assert.Contains(t, context, "Menu: Gado Gado")
	assert.Contains(t, context, "Vegetable salad with peanut sauce")
	// Attributes are sorted by key and render lists comma-separated
	assert.Contains(t, context, "calories: 320")
	assert.Contains(t, context, "category: salad")
	assert.Contains(t, context, "suitable_for: lunch, dinner")
	assert.Less(t, strings.Index(context, "calories:"), strings.Index(context, "category:"))
}

func TestComposeBoundsRecordCount(t *testing.T) {
	c := NewComposer(200, 2)

	results := []Result{
		{Key: "A", Content: "a"},
		{Key: "B", Content: "b"},
		{Key: "C", Content: "c"},
	}

	context := c.Compose(results)
	assert.Contains(t, context, "Menu: A")
	assert.Contains(t, context, "Menu: B")
	assert.NotContains(t, context, "Menu: C")
}

func TestComposeNeverTruncatesContent(t *testing.T) {
	// Preview budget must not leak into the composed context.
	c := NewComposer(10, 5)

	long := strings.Repeat("nasi goreng kampung ", 50)
	context := c.Compose([]Result{{Key: "Long", Content: long}})

	assert.Contains(t, context, long)
}

func TestPreview(t *testing.T) {
	c := NewComposer(10, 5)

	assert.Equal(t, "short", c.Preview("short"))
	assert.Equal(t, "exactly 10", c.Preview("exactly 10"))
	assert.Equal(t, "this is lo...", c.Preview("this is longer than ten"))

	// Zero budget disables truncation
	c.PreviewChars = 0
	assert.Equal(t, "anything at all", c.Preview("anything at all"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "450", formatValue(float64(450)))
	assert.Equal(t, "1.5", formatValue(1.5))
	assert.Equal(t, "sehat", formatValue("sehat"))
	assert.Equal(t, "a, b", formatValue([]any{"a", "b"}))
}
