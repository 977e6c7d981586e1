package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/pipeline"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	askTopK int
	askJSON bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and get an answer grounded in the collection",
	Long: `Retrieve the most relevant records and generate an answer from them.

When nothing relevant is found, ragu says so without calling the model.
When the primary model fails, the configured fallback model is tried once.

Examples:
  # Ask with defaults
  ragu ask "which menu suits a low-salt diet?"

  # Ground the answer on more records
  ragu ask "compare the soups" -k 5

  # Full structured result as JSON
  ragu ask "what is rendang?" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "records to ground the answer on (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full result as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	var result *pipeline.AskResult
	if askJSON {
		result = p.Ask(ctx, args[0], askTopK)
		return printJSON(result)
	}

	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	go showSpinner("Thinking", stopSpinner, spinnerDone)

	result = p.Ask(ctx, args[0], askTopK)

	close(stopSpinner)
	<-spinnerDone

	if !result.Success {
		return fmt.Errorf("ask failed: %s", result.Error)
	}

	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, err := renderMarkdown(result.Answer)
	if err != nil {
		fmt.Println(result.Answer)
	} else {
		fmt.Print(rendered)
	}

	if result.FallbackUsed {
		fmt.Println(ui.Dim.Render("(answered by the fallback model)"))
		fmt.Println()
	}

	if result.NumResults > 0 {
		fmt.Println(ui.Dim.Render("Sources:"))
		for i, item := range result.RetrievedItems {
			fmt.Printf("  [%d] %s %s\n", i+1, item.Label, ui.FormatScore(item.Score))
		}
	}

	return nil
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
