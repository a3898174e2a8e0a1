package handlers

import (
	"context"
	"fmt"

	"veille/internal/logger"
	"veille/internal/persistence"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status

The migration system tracks applied migrations in the schema_migrations
table and applies new migrations in sequential order. The pgvector
extension is created by the embedding migration, so the database user
needs the CREATE EXTENSION privilege on first run.

Examples:
  # Apply all pending migrations
  veille migrate up

  # Check migration status
  veille migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending database migrations.

This command will:
  • Create schema_migrations table if it doesn't exist
  • Check which migrations have been applied
  • Apply all pending migrations in order
  • Record each migration in schema_migrations

Migrations are applied in a transaction and will rollback on failure.

Example:
  veille migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show the status of all migrations.

Displays which migrations have been applied and which are pending.

Example:
  veille migrate status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

// Implementation functions

func runMigrateUp(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting database migration")

	// Get database connection
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	// Create migration manager
	pgDB, ok := db.(*persistence.PostgresDB)
	if !ok {
		return fmt.Errorf("only PostgreSQL database is supported for migrations")
	}

	migrator := persistence.NewMigrationManager(pgDB)

	// Run migrations
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✅ All migrations applied successfully")
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	// Get database connection
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	// Create migration manager
	pgDB, ok := db.(*persistence.PostgresDB)
	if !ok {
		return fmt.Errorf("only PostgreSQL database is supported for migrations")
	}

	migrator := persistence.NewMigrationManager(pgDB)

	// Get status
	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Println("📊 Migration Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	appliedCount := 0
	pendingCount := 0

	for _, m := range status {
		statusStr := "pending"
		statusIcon := "⏳"
		if m.Applied {
			statusStr = "applied"
			statusIcon = "✅"
			appliedCount++
		} else {
			pendingCount++
		}

		fmt.Printf("%-10d %s %-8s %s\n", m.Version, statusIcon, statusStr, m.Description)
	}

	fmt.Println()
	fmt.Printf("Applied: %d | Pending: %d | Total: %d\n", appliedCount, pendingCount, len(status))

	if pendingCount > 0 {
		fmt.Println("\nRun 'veille migrate up' to apply pending migrations")
	}

	return nil
}
