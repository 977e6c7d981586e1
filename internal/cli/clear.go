package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/store"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	clearCollection string
	clearYes        bool
)

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all records from a collection",
	Long: `Delete every record and vector in a collection. The collection itself
remains and can be reloaded.

Examples:
  # Clear the default collection (asks for confirmation)
  ragu clear

  # Clear a named collection without asking
  ragu clear --collection notes --yes`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().StringVar(&clearCollection, "collection", "", "collection to clear (default from config)")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	collName := clearCollection
	if collName == "" {
		collName = cfg.Retrieval.Collection
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	coll, err := st.GetCollection(collName)
	if err != nil {
		return fmt.Errorf("failed to look up collection: %w", err)
	}
	if coll == nil {
		return fmt.Errorf("collection not found: %s", collName)
	}

	count, err := st.Count(coll.ID)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		fmt.Printf("Collection %q is already empty.\n", collName)
		return nil
	}

	if !clearYes {
		fmt.Printf("Delete %d records from %q? [y/N] ", count, collName)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := st.Clear(coll.ID); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Removed %d records from %q.", count, collName)))
	return nil
}
