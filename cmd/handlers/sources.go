package handlers

import (
	"context"
	"errors"
	"fmt"

	"veille/internal/core"
	"veille/internal/logger"
	"veille/internal/persistence"

	"github.com/spf13/cobra"
)

// seedCatalogue is the bootstrap feed catalogue: the French press core plus
// the major international desks covering France and Europe.
var seedCatalogue = []core.Source{
	{URL: "http://www.lemonde.fr/rss/une.xml", Name: "Le Monde – A la Une", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/international/rss_full.xml", Name: "Le Monde – International", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/politique/rss_full.xml", Name: "Le Monde – Politique", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/economie/rss_full.xml", Name: "Le Monde – Économie", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/planete/rss_full.xml", Name: "Le Monde – Planète", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/culture/rss_full.xml", Name: "Le Monde – Culture", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "lc"},
	{URL: "https://www.lemonde.fr/pixels/rss_full.xml", Name: "Le Monde – Pixels (Tech)", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "na"},
	{URL: "https://www.lemonde.fr/sport/rss_full.xml", Name: "Le Monde – Sport", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "na"},
	{URL: "http://www.lefigaro.fr/rss/figaro_actualites.xml", Name: "Le Figaro – Actualités", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "rc"},
	{URL: "https://services.lesechos.fr/rss/les-echos-monde.xml", Name: "Les Échos – Monde", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "rc"},
	{URL: "https://services.lesechos.fr/rss/les-echos-politique.xml", Name: "Les Échos – Politique", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "rc"},
	{URL: "https://services.lesechos.fr/rss/les-echos-finance-marches.xml", Name: "Les Échos – Finances et Marchés", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "rc"},
	{URL: "https://services.lesechos.fr/rss/les-echos-tech-medias.xml", Name: "Les Échos – Tech et Médias", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "na"},
	{URL: "https://services.lesechos.fr/rss/les-echos-start-up.xml", Name: "Les Échos – Start-up", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "national", PoliticalAxis: "na"},
	{URL: "https://www.france24.com/fr/rss", Name: "France 24 (FR)", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "international", PoliticalAxis: "c"},
	{URL: "https://www.rfi.fr/fr/rss", Name: "RFI – Monde", Kind: "feed", Country: "FR", Lang: "fr", TrustTier: "B", Scope: "international", PoliticalAxis: "c"},
	{URL: "https://www.euronews.com/rss?level=theme&name=news", Name: "Euronews – All News", Kind: "feed", Country: "FR", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "c"},
	{URL: "https://feeds.bbci.co.uk/news/world/rss.xml", Name: "BBC World", Kind: "feed", Country: "GB", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "c"},
	{URL: "https://www.theguardian.com/world/rss", Name: "The Guardian – World", Kind: "feed", Country: "GB", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "lc"},
	{URL: "https://rss.nytimes.com/services/xml/rss/nyt/World.xml", Name: "NY Times – World", Kind: "feed", Country: "US", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "lc"},
	{URL: "https://feeds.washingtonpost.com/rss/world", Name: "Washington Post – World", Kind: "feed", Country: "US", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "l"},
	{URL: "https://rss.dw.com/rdf/rss-en-top", Name: "DW – Top Stories", Kind: "feed", Country: "DE", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "c"},
	{URL: "https://www.spiegel.de/international/index.rss", Name: "Der Spiegel International", Kind: "feed", Country: "DE", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "lc"},
	{URL: "https://www.politico.eu/feed/", Name: "Politico Europe", Kind: "feed", Country: "BE", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "lc"},
	{URL: "https://www.aljazeera.com/xml/rss/all.xml", Name: "Al Jazeera English – All", Kind: "feed", Country: "QA", Lang: "en", TrustTier: "B", Scope: "international", PoliticalAxis: "lc"},
}

// NewSourcesCmd creates the sources command for managing the feed catalogue
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the feed catalogue",
		Long: `Manage the catalogue of ingested feeds.

Subcommands:
  seed   Insert the bundled feed catalogue, skipping known URLs
  list   Show every source with its fetch health

Examples:
  # Bootstrap a fresh database with the bundled catalogue
  veille sources seed

  # Inspect fetch health
  veille sources list`,
	}

	cmd.AddCommand(newSourcesSeedCmd())
	cmd.AddCommand(newSourcesListCmd())

	return cmd
}

func newSourcesSeedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the bundled feed catalogue",
		Long: `Insert the bundled feed catalogue into the database.

Sources are matched by URL; known URLs are left untouched, so seeding
is safe to repeat after catalogue updates.

Example:
  veille sources seed
  veille sources seed --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesSeed(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be inserted without writing")

	return cmd
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every source with its fetch health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesList(cmd.Context())
		},
	}
}

// Implementation functions

func runSourcesSeed(ctx context.Context, dryRun bool) error {
	log := logger.Get()
	log.Info("Seeding source catalogue", "sources", len(seedCatalogue), "dry_run", dryRun)

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	added := 0
	skipped := 0

	for _, entry := range seedCatalogue {
		_, err := db.Sources().GetByURL(ctx, entry.URL)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("failed to look up source %s: %w", entry.URL, err)
		}

		if dryRun {
			fmt.Printf("would add: %s (%s)\n", entry.Name, entry.URL)
			added++
			continue
		}

		source := entry
		source.Status = "active"
		if err := db.Sources().Create(ctx, &source); err != nil {
			return fmt.Errorf("failed to create source %s: %w", entry.URL, err)
		}
		added++
	}

	fmt.Printf("Added: %d | Already present: %d\n", added, skipped)
	return nil
}

func runSourcesList(ctx context.Context) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.Sources().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No sources found. Run 'veille sources seed' to bootstrap the catalogue")
		return nil
	}

	fmt.Println("📡 Source Catalogue")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-5s %-34s %-8s %-9s %s\n", "ID", "Name", "Status", "Err Rate", "Last Fetch")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	active := 0
	for _, s := range sources {
		if s.Status == "active" {
			active++
		}

		lastFetch := "never"
		if s.LastFetchAt != nil {
			lastFetch = s.LastFetchAt.Format("2006-01-02 15:04")
		}

		fmt.Printf("%-5d %-34s %-8s %-9.2f %s\n", s.ID, s.Name, s.Status, s.ErrorRate, lastFetch)
	}

	fmt.Println()
	fmt.Printf("Active: %d | Total: %d\n", active, len(sources))

	return nil
}
