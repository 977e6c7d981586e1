package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/nutrition"
	"github.com/pcarver/ragu/internal/store"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	nutritionCollection string
	nutritionJSON       bool
)

// nutritionCmd represents the nutrition command
var nutritionCmd = &cobra.Command{
	Use:   "nutrition <name>",
	Short: "Show a menu's nutritional breakdown",
	Long: `Look up a menu by name and show its nutritional values with daily-value
percentages, based on a 2000 kcal reference diet.

The name matches case-insensitively on any part of the record key.

Examples:
  ragu nutrition "nasi goreng"
  ragu nutrition soto --json`,
	Args: cobra.ExactArgs(1),
	RunE: runNutrition,
}

func init() {
	nutritionCmd.Flags().StringVar(&nutritionCollection, "collection", "", "collection to look in (default from config)")
	nutritionCmd.Flags().BoolVar(&nutritionJSON, "json", false, "output the report as JSON")
}

func runNutrition(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	collName := nutritionCollection
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
		return fmt.Errorf("collection %q does not exist, load records first", collName)
	}

	report, err := nutrition.New(st, coll).ByName(args[0])
	if err != nil {
		if errors.Is(err, nutrition.ErrNotFound) {
			fmt.Printf("No menu matching %q was found.\n", args[0])
			return nil
		}
		return err
	}

	if nutritionJSON {
		return printJSON(report)
	}

	displayNutrition(report)
	return nil
}

// displayNutrition prints the daily-value breakdown.
func displayNutrition(report *nutrition.Report) {
	fmt.Println(ui.Header.Render(report.Menu))
	fmt.Println()

	printNutrient("Calories", report.Calories)
	printNutrient("Protein", report.Protein)
	printNutrient("Fat", report.Fat)
	printNutrient("Carbs", report.Carbs)
	if report.Fiber > 0 {
		fmt.Printf("  %s %.0fg\n", ui.Dim.Render("Fiber:"), report.Fiber)
	}
	if report.Salt > 0 {
		fmt.Printf("  %s %.0fg\n", ui.Dim.Render("Salt:"), report.Salt)
	}

	if len(report.Attributes) > 0 {
		fmt.Println()
		displayMetadata(report.Attributes)
	}
}

func printNutrient(label string, n nutrition.Nutrient) {
	fmt.Printf("  %s %.0f%s %s\n",
		ui.Dim.Render(label+":"),
		n.Amount,
		n.Unit,
		ui.Success.Render(fmt.Sprintf("(%.1f%% daily value)", n.DailyPercent)),
	)
}
