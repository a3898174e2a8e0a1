package handlers

import (
	"context"
	"fmt"
	"strconv"

	"veille/internal/config"
	"veille/internal/core"
	"veille/internal/logger"
	"veille/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewRunsCmd creates the runs command for cluster-run administration
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage cluster runs",
		Long: `Manage cluster runs, the namespaces under which articles are grouped.

Clustering only happens under the active run of the embedding space.
Creating a run with different parameters and activating it later lets a
re-clustering build up alongside the serving one, then swap in
atomically.

Subcommands:
  create     Create a new run (optionally activate it immediately)
  activate   Make a run the active one for its space
  list       Show recent runs

Examples:
  # Create and activate a first run
  veille runs create --activate

  # Prepare a stricter run, then swap once it has caught up
  veille runs create --threshold 0.85
  veille runs activate 7`,
	}

	cmd.AddCommand(newRunsCreateCmd())
	cmd.AddCommand(newRunsActivateCmd())
	cmd.AddCommand(newRunsListCmd())

	return cmd
}

func newRunsCreateCmd() *cobra.Command {
	var (
		algo      string
		threshold float64
		activate  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new cluster run",
		Long: `Create a new cluster run in the configured embedding space.

The threshold is stored as a run parameter and read by the clusterer on
every assignment, so runs with different thresholds can coexist.

Example:
  veille runs create --threshold 0.85 --activate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsCreate(cmd.Context(), algo, threshold, activate)
		},
	}

	cmd.Flags().StringVar(&algo, "algo", "online_knn", "Clustering algorithm label")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.80, "Assignment similarity threshold")
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate the run immediately")

	return cmd
}

func newRunsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <run-id>",
		Short: "Make a run the active one for its space",
		Long: `Make a run the active one for its embedding space.

Every sibling run of the same space is deactivated in the same
transaction, so exactly one run serves the space at any time.

Example:
  veille runs activate 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID %q", args[0])
			}
			return runRunsActivate(cmd.Context(), id)
		},
	}
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")

	return cmd
}

// Implementation functions

func runRunsCreate(ctx context.Context, algo string, threshold float64, activate bool) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	space, err := db.Spaces().GetOrCreate(ctx, cfg.Embedding.Space, cfg.Embedding.Provider,
		cfg.Embedding.Dims, pipeline.SpaceVersion)
	if err != nil {
		return fmt.Errorf("failed to resolve embedding space: %w", err)
	}

	run := &core.ClusterRun{
		SpaceID: space.ID,
		Algo:    algo,
		Params:  map[string]any{"threshold": threshold},
	}
	if err := db.Runs().Create(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	log.Info("Created cluster run", "run_id", run.ID, "space_id", space.ID, "threshold", threshold)
	fmt.Printf("Created run %d in space %q (threshold %.2f)\n", run.ID, space.Name, threshold)

	if activate {
		if err := db.Runs().Activate(ctx, run.ID); err != nil {
			return fmt.Errorf("failed to activate run %d: %w", run.ID, err)
		}
		fmt.Printf("Run %d is now active\n", run.ID)
	} else {
		fmt.Printf("Run 'veille runs activate %d' to make it active\n", run.ID)
	}

	return nil
}

func runRunsActivate(ctx context.Context, id int64) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Runs().Get(ctx, id); err != nil {
		return fmt.Errorf("failed to load run %d: %w", id, err)
	}

	if err := db.Runs().Activate(ctx, id); err != nil {
		return fmt.Errorf("failed to activate run %d: %w", id, err)
	}

	fmt.Printf("Run %d is now active\n", id)
	return nil
}

func runRunsList(ctx context.Context, limit int) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs().List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found. Run 'veille runs create --activate' to start clustering")
		return nil
	}

	fmt.Println("🌀 Cluster Runs")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-5s %-7s %-12s %-10s %-9s %s\n", "ID", "Space", "Algo", "Status", "Active", "Started")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for _, r := range runs {
		active := ""
		if r.IsActive {
			active = "✅"
		}
		fmt.Printf("%-5d %-7d %-12s %-10s %-9s %s\n",
			r.ID, r.SpaceID, r.Algo, r.Status, active, r.StartedAt.Format("2006-01-02 15:04"))
	}

	return nil
}
