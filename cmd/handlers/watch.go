package handlers

import (
	"context"
	"fmt"

	"veille/internal/bus"
	"veille/internal/config"
	"veille/internal/queue"
	"veille/internal/watch"

	"github.com/spf13/cobra"
)

// NewWatchCmd creates the watch command for the live event viewer
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch trending events live in the terminal",
		Long: `Open a terminal viewer showing trending events as they are detected.

The viewer seeds itself with the last day of events from the database,
then follows the Redis event channel. New events appear at the top with
a live marker.

Example:
  veille watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
}

func runWatch(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := queue.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	return watch.Run(ctx, db, bus.New(redisClient))
}
