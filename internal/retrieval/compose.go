package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// Composer formats retrieved records into the context block handed to the
// answer generator. The composed context always carries the full record
// text; Preview exists only for user-facing summaries and never feeds
// generation.
type Composer struct {
	// Label prefixes each record's key in the context ("Menu", "Document").
	Label string

	// PreviewChars bounds Preview output.
	PreviewChars int

	// MaxRecords bounds how many results enter the context. Zero means all.
	MaxRecords int
}

// NewComposer creates a Composer with the menu deployment's label.
func NewComposer(previewChars, maxRecords int) *Composer {
	return &Composer{
		Label:        "Menu",
		PreviewChars: previewChars,
		MaxRecords:   maxRecords,
	}
}

// Compose concatenates each record's label and full text into blocks
// separated by a blank line, best match first. Empty input produces an empty
// context.
func (c *Composer) Compose(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	if c.MaxRecords > 0 && len(results) > c.MaxRecords {
		results = results[:c.MaxRecords]
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %s\n%s", c.Label, r.Key, r.Content)
		if len(r.Metadata) > 0 {
			sb.WriteString("\n")
			sb.WriteString(formatMetadata(r.Metadata))
		}
		blocks = append(blocks, sb.String())
	}

	return strings.Join(blocks, "\n\n")
}

// Preview shortens content for display in result listings.
func (c *Composer) Preview(content string) string {
	if c.PreviewChars <= 0 || len(content) <= c.PreviewChars {
		return content
	}
	return content[:c.PreviewChars] + "..."
}

// formatMetadata renders metadata as stable, sorted attribute lines.
func formatMetadata(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", k, formatValue(metadata[k]))
	}
	return sb.String()
}

// formatValue renders a scalar or small list metadata value.
func formatValue(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	case float64:
		// JSON numbers decode as float64; print integers without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
