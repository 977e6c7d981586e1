package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  ragu config

  # Show config file paths
  ragu config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", filepath.Join(config.DefaultConfigDir(), "config.yaml"))
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", config.Get().Database.Path)
		return nil
	}

	cfg := config.Get()

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Collection: %s\n", cfg.Retrieval.Collection)
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Min Score: %.2f\n", cfg.Retrieval.MinScore)
	fmt.Printf("  Preview Chars: %d\n", cfg.Retrieval.PreviewChars)
	fmt.Printf("  Max Context Records: %d\n", cfg.Retrieval.MaxContextRecords)
	fmt.Println()

	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.LLM.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.LLM.OpenAI.Model)
	fmt.Printf("  Anthropic Model: %s\n", cfg.LLM.Anthropic.Model)
	if cfg.LLM.Fallback.Provider != "" {
		fmt.Printf("  Fallback: %s/%s\n", cfg.LLM.Fallback.Provider, cfg.LLM.Fallback.Model)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
