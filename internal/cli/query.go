package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/pipeline"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	queryTopK    int
	queryJSON    bool
	queryContext bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve the records most similar to a query",
	Long: `Retrieve records by semantic similarity without generating an answer.

Results are ranked by cosine similarity; ties keep insertion order.

Examples:
  # Top 3 records for a query
  ragu query "high protein dishes"

  # More results
  ragu query "soup" -k 10

  # Machine-readable output
  ragu query "healthy lunch" --json

  # Show the full composed context
  ragu query "healthy lunch" --context`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the full result as JSON")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "show the composed context below the results")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Debug("Running query", "collection", p.Collection().Name, "topK", queryTopK)
	result := p.Query(ctx, args[0], queryTopK)

	if queryJSON {
		return printJSON(result)
	}

	if !result.Success {
		fmt.Println(ui.Error.Render("Query failed: " + result.Error))
		os.Exit(1)
	}

	if result.NumResults == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayRetrievedItems(result)

	if queryContext {
		fmt.Println(ui.SectionTitle.Render("Context"))
		fmt.Println()
		fmt.Println(result.Context)
	}

	return nil
}

// displayRetrievedItems prints ranked results with scores and previews.
func displayRetrievedItems(result *pipeline.QueryResult) {
	fmt.Printf("Found %d results:\n\n", result.NumResults)

	for i, item := range result.RetrievedItems {
		fmt.Println(ui.FormatResultHeader(i+1, item.Label, item.Score))
		if item.Preview != "" {
			fmt.Println(ui.ResultPreview.Render(item.Preview))
		}
		fmt.Println()
	}
}

// displayMetadata prints metadata entries in sorted key order.
func displayMetadata(metadata map[string]any) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("  %s %v\n", ui.MetadataKey.Render(k+":"), metadata[k])
	}
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
