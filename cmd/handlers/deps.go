package handlers

import (
	"fmt"

	"veille/internal/config"
	"veille/internal/persistence"
)

// getDatabase is a helper function to load config and connect to database
func getDatabase() (persistence.Database, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL not configured (set database.url in config or DATABASE_URL env var)")
	}

	db, err := persistence.NewPostgresDB(cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
