package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/store"
	"github.com/pcarver/ragu/internal/ui"
)

var statusCollection string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collections and record counts",
	Long: `Display loaded collections, their embedding models, and record counts.

Examples:
  # Show all collections
  ragu status

  # Show one collection
  ragu status --collection menus`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusCollection, "collection", "", "specific collection to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	collections, err := st.ListCollections()
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if len(collections) == 0 {
		fmt.Println("No collections found.")
		fmt.Println()
		fmt.Println("Run 'ragu load <path>' to create one.")
		return nil
	}

	var display []store.Collection
	if statusCollection != "" {
		for _, c := range collections {
			if c.Name == statusCollection {
				display = append(display, c)
				break
			}
		}
		if len(display) == 0 {
			return fmt.Errorf("collection not found: %s", statusCollection)
		}
	} else {
		display = collections
	}

	fmt.Println(ui.Header.Render("Collections"))
	fmt.Println()

	for i, c := range display {
		count, err := st.Count(c.ID)
		if err != nil {
			log.Warn("Failed to count records", "collection", c.Name, "error", err)
			continue
		}

		fmt.Printf("%s %s\n",
			ui.Highlight.Render("Collection:"),
			ui.Bold.Render(c.Name),
		)
		fmt.Printf("  %s %s (%s)\n",
			ui.Dim.Render("Model:"),
			c.EmbeddingModel,
			c.EmbeddingProvider,
		)
		fmt.Printf("  %s %d\n",
			ui.Dim.Render("Dimensions:"),
			c.EmbeddingDimensions,
		)
		fmt.Printf("  %s %d\n",
			ui.Dim.Render("Records:"),
			count,
		)
		fmt.Printf("  %s %s\n",
			ui.Dim.Render("Created:"),
			formatTime(c.CreatedAt),
		)
		fmt.Printf("  %s %s\n",
			ui.Dim.Render("Updated:"),
			formatTime(c.UpdatedAt),
		)

		if count == 0 {
			fmt.Printf("  %s\n", ui.Warning.Render("(empty, load records to query it)"))
		}

		if i < len(display)-1 {
			fmt.Println()
		}
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  Embedding Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  LLM Provider: %s\n", cfg.LLM.Provider)

	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}
	return t.Format("Jan 2, 2006 at 15:04")
}
