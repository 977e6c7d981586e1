package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/mcp"
	"github.com/pcarver/ragu/internal/pipeline"
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdin/stdout.

The server speaks JSON-RPC 2.0 and provides tools for:
  - menu_query: retrieve similar records with scores and previews
  - menu_ask: answer a question grounded in the collection
  - menu_nutrition: nutritional breakdown for a menu by name
  - menu_status: collection name, model, and record count

This command is typically invoked by AI agents and not run directly.`,
	RunE: runMcpCmd,
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)

	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	server := mcp.NewServer(p)
	return server.Run(ctx)
}
