package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veille/internal/config"
	"veille/internal/feeds"
	"veille/internal/logger"
	"veille/internal/pipeline"
	"veille/internal/queue"

	"github.com/spf13/cobra"
)

// NewBeatCmd creates the beat command for the periodic dispatcher
func NewBeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "beat",
		Short: "Run the periodic job dispatcher",
		Long: `Run the scheduler that feeds the job queue at fixed intervals.

Every ingest interval one ingest job is enqueued per active source, and
every trends interval one trend computation job is enqueued. The jobs
carry a TTL so a stalled queue sheds stale ticks instead of replaying
them when workers catch up.

Run exactly one beat process per deployment.

Example:
  veille beat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBeat(cmd.Context())
		},
	}
}

func runBeat(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting beat")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'veille migrate up' to initialize the database schema.", err)
	}

	redisClient, err := queue.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	q := queue.New(redisClient, cfg.Redis.QueueKey)
	fetcher := feeds.NewFetcher(cfg.Ingest.FeedTimeout, cfg.Ingest.UserAgent)
	dispatcher := pipeline.NewDispatcher(db, q, fetcher, pipelineConfig(cfg))

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Beat schedule",
		"ingest_interval", cfg.Schedule.IngestInterval,
		"trends_interval", cfg.Schedule.TrendsInterval)
	log.Info("Press Ctrl+C to stop")

	// First ticks fire at startup so a fresh deployment does not idle
	// through a full interval before ingesting anything.
	dispatchIngest(runCtx, log, dispatcher)
	dispatchTrends(runCtx, log, dispatcher)

	ingestTicker := time.NewTicker(cfg.Schedule.IngestInterval)
	defer ingestTicker.Stop()
	trendsTicker := time.NewTicker(cfg.Schedule.TrendsInterval)
	defer trendsTicker.Stop()

	for {
		select {
		case <-runCtx.Done():
			log.Info("Beat stopped")
			return nil
		case <-ingestTicker.C:
			dispatchIngest(runCtx, log, dispatcher)
		case <-trendsTicker.C:
			dispatchTrends(runCtx, log, dispatcher)
		}
	}
}

// A failed dispatch is logged and retried on the next tick.

func dispatchIngest(ctx context.Context, log *slog.Logger, dispatcher *pipeline.Dispatcher) {
	n, err := dispatcher.DispatchIngest(ctx)
	if err != nil {
		log.Error("Ingest dispatch failed", "error", err)
		return
	}
	log.Info("Dispatched ingest jobs", "sources", n)
}

func dispatchTrends(ctx context.Context, log *slog.Logger, dispatcher *pipeline.Dispatcher) {
	if err := dispatcher.DispatchTrends(ctx); err != nil {
		log.Error("Trends dispatch failed", "error", err)
		return
	}
	log.Debug("Dispatched trends job")
}
