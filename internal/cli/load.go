package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pcarver/ragu/internal/config"
	"github.com/pcarver/ragu/internal/embeddings"
	"github.com/pcarver/ragu/internal/loader"
	"github.com/pcarver/ragu/internal/store"
	"github.com/pcarver/ragu/internal/ui"
)

var (
	loadCollection string
	loadReplace    bool
	loadBatchSize  int
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load <path>",
	Short: "Load records into a collection",
	Long: `Load records from a JSON file or a directory of text documents.

A .json file is read as an array of {"key", "content", "metadata"} objects.
A directory is walked for .txt and .md files; each file becomes one record
keyed by its file stem.

Existing keys are skipped by default so repeated loads are idempotent.
Use --replace to refresh content and embeddings for existing keys.

Examples:
  # Load a JSON file into the default collection
  ragu load menus.json

  # Load documents into a named collection
  ragu load ./docs --collection notes

  # Refresh existing records
  ragu load menus.json --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadCollection, "collection", "", "collection to load into (default from config)")
	loadCmd.Flags().BoolVar(&loadReplace, "replace", false, "replace existing records instead of skipping them")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", loader.DefaultBatchSize, "documents embedded per batch")
}

func runLoad(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg := config.Get()

	collName := loadCollection
	if collName == "" {
		collName = cfg.Retrieval.Collection
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	coll, err := getOrCreateCollection(st, collName, emb)
	if err != nil {
		return err
	}

	l := loader.New(st, emb, coll)
	report, err := l.LoadPath(ctx, path, loader.Options{
		Replace:        loadReplace,
		IgnorePatterns: cfg.Ignore,
		BatchSize:      loadBatchSize,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("load failed: %w", err)
	}

	if err := st.UpdateCollectionTimestamp(coll.ID); err != nil {
		log.Warn("Failed to update collection timestamp", "error", err)
	}

	fmt.Printf("%s %s\n", ui.Header.Render("Loaded into"), ui.Bold.Render(coll.Name))
	fmt.Printf("  %s %d\n", ui.Dim.Render("Inserted:"), report.Inserted)
	fmt.Printf("  %s %d\n", ui.Dim.Render("Skipped:"), report.Skipped)
	if report.Replaced > 0 {
		fmt.Printf("  %s %d\n", ui.Dim.Render("Replaced:"), report.Replaced)
	}
	if len(report.Errors) > 0 {
		fmt.Printf("  %s %d\n", ui.Warning.Render("Errors:"), len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("    %s %s\n", ui.Error.Render(e.Key+":"), e.Reason)
		}
	}

	return nil
}

// getOrCreateCollection fetches the named collection, creating it with the
// embedder's dimension on first load. A collection created with a different
// model is rejected rather than silently mixed.
func getOrCreateCollection(st store.Store, name string, emb embeddings.Service) (*store.Collection, error) {
	coll, err := st.GetCollection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}
	if coll == nil {
		coll, err = st.CreateCollection(name, store.Provider(emb.Provider()), emb.ModelName(), emb.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
		log.Info("Created collection", "name", name, "model", emb.ModelName(), "dimensions", emb.Dimensions())
		return coll, nil
	}

	if coll.EmbeddingModel != emb.ModelName() {
		return nil, fmt.Errorf("collection %q was built with model %s, configured model is %s",
			name, coll.EmbeddingModel, emb.ModelName())
	}

	return coll, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	return ctx, cancel
}
