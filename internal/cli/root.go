// Package cli implements the command-line interface for ragu.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ragu",
	Short: "Retrieval-augmented answers over your own records",
	Long: `ragu loads documents or menu records into a local vector store and answers
questions grounded in them.

Embeddings come from a local Ollama server or OpenAI, vectors live in SQLite,
and answers are generated by the configured LLM with a fallback model.

Examples:
  # Load a JSON file of records
  ragu load menus.json

  # Load a directory of .txt/.md documents
  ragu load ./docs

  # Retrieve the most similar records
  ragu query "high protein dishes"

  # Ask a question and get a grounded answer
  ragu ask "which menu suits a low-salt diet?"

  # Nutritional breakdown for one menu
  ragu nutrition "nasi goreng"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitLogger(debug)

		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger(false)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ragu/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(nutritionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragu %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}
