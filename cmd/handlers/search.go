package handlers

import (
	"context"
	"fmt"
	"strings"

	"veille/internal/config"
	"veille/internal/logger"
	"veille/internal/search"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command for managing the Meilisearch index
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Manage the full-text search index",
		Long: `Manage the Meilisearch index behind the search API.

Subcommands:
  init      Create the index and push its settings
  backfill  Index every stored article
  query     Run a search from the command line

Workers index articles as they arrive; init and backfill cover a fresh
Meilisearch instance or a settings change.

Examples:
  # Prepare a fresh Meilisearch instance
  veille search init

  # Re-index everything
  veille search backfill

  # Try a query
  veille search query "grève SNCF"`,
	}

	cmd.AddCommand(newSearchInitCmd())
	cmd.AddCommand(newSearchBackfillCmd())
	cmd.AddCommand(newSearchQueryCmd())

	return cmd
}

func newSearchInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the index and push its settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchInit(cmd.Context())
		},
	}
}

func newSearchBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Index every stored article",
		Long: `Index every stored article into Meilisearch.

Articles already present are overwritten, so backfill is safe to repeat.
Articles that fail to index are skipped and counted.

Example:
  veille search backfill`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchBackfill(cmd.Context())
		},
	}
}

func newSearchQueryCmd() *cobra.Command {
	var (
		limit int64
		lang  string
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a search from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchQuery(cmd.Context(), strings.Join(args, " "), limit, lang)
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 10, "Maximum hits to show")
	cmd.Flags().StringVar(&lang, "lang", "", "Restrict to a language (e.g. fr)")

	return cmd
}

// Implementation functions

func getSearchClient() (*search.Client, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := getDatabase()
	if err != nil {
		return nil, nil, err
	}

	client := search.NewClient(db, cfg.Search.Host, cfg.Search.APIKey, cfg.Search.Index)
	return client, func() { db.Close() }, nil
}

func runSearchInit(ctx context.Context) error {
	log := logger.Get()

	client, cleanup, err := getSearchClient()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := client.Setup(ctx); err != nil {
		return fmt.Errorf("failed to set up search index: %w", err)
	}

	log.Info("Search index ready", "index", config.GetSearch().Index)
	fmt.Println("✅ Search index created and configured")
	return nil
}

func runSearchBackfill(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting search backfill")

	client, cleanup, err := getSearchClient()
	if err != nil {
		return err
	}
	defer cleanup()

	indexed, skipped, err := client.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("Indexed: %d | Skipped: %d\n", indexed, skipped)
	return nil
}

func runSearchQuery(ctx context.Context, text string, limit int64, lang string) error {
	client, cleanup, err := getSearchClient()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := client.Search(ctx, search.Query{Text: text, Limit: limit, Lang: lang})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("%d hits for %q (%d ms)\n\n", result.EstimatedTotalHits, text, result.ProcessingTimeMs)

	for i, hit := range result.Hits {
		doc, ok := hit.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("%2d. %v\n    %v\n", i+1, doc["title"], doc["url"])
	}

	return nil
}
