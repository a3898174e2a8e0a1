package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veille/internal/bus"
	"veille/internal/config"
	"veille/internal/embed"
	"veille/internal/extract"
	"veille/internal/feeds"
	"veille/internal/logger"
	"veille/internal/pipeline"
	"veille/internal/queue"
	"veille/internal/search"
	"veille/internal/summarize"
	"veille/internal/trends"

	"github.com/spf13/cobra"
)

// NewWorkerCmd creates the worker command for running queue consumers
func NewWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the queue worker pool",
		Long: `Run the worker pool consuming jobs from the Redis queue.

A worker process handles every job kind: feed ingestion, article
processing, embedding and clustering, search indexing, cluster
summarisation and trend computation. Run several worker processes to
scale out; they share one queue.

The queue is fed by 'veille beat' and by the handlers themselves as
articles move through the pipeline.

Examples:
  # Run with the configured concurrency (default 4 goroutines)
  veille worker

  # Run with 8 goroutines
  veille worker --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), concurrency)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker goroutines (default from config: 4)")

	return cmd
}

func runWorker(ctx context.Context, concurrency int) error {
	log := logger.Get()
	log.Info("Starting worker")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if concurrency == 0 {
		concurrency = cfg.Worker.Concurrency
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
	eventBus := bus.New(redisClient)

	// Pipeline dependencies
	fetcher := feeds.NewFetcher(cfg.Ingest.FeedTimeout, cfg.Ingest.UserAgent)
	extractor := extract.NewHTMLExtractor()
	provider := embed.NewMistralClient(cfg.Mistral.BaseURL, cfg.Mistral.APIKey,
		cfg.Mistral.EmbedModel, cfg.Mistral.Timeout)
	engine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	pcfg := pipelineConfig(cfg)
	dispatcher := pipeline.NewDispatcher(db, q, fetcher, pcfg)
	processor := pipeline.NewProcessor(db, q, extractor, pcfg)
	clusterer := pipeline.NewClusterer(db, q, provider, pcfg)
	summariser := summarize.NewService(db, engine, cfg.Summariser.Lang)
	searchClient := search.NewClient(db, cfg.Search.Host, cfg.Search.APIKey, cfg.Search.Index)
	calculator := trends.NewCalculator(db)
	detector := trends.NewDetector(db, eventBus, trends.DefaultThresholds())

	w := queue.NewWorker(q, concurrency, cfg.Worker.JobTimeout)
	w.Register(pipeline.KindIngestSource, dispatcher.HandleIngestSource)
	w.Register(pipeline.KindProcessArticle, processor.HandleProcessArticle)
	w.Register(pipeline.KindEmbedAndCluster, clusterer.HandleEmbedAndCluster)
	w.Register(pipeline.KindIndexArticle, func(ctx context.Context, job *queue.Job) error {
		var payload pipeline.IndexArticlePayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return searchClient.IndexArticle(ctx, payload.ArticleID)
	})
	w.Register(pipeline.KindSummarizeCluster, func(ctx context.Context, job *queue.Job) error {
		var payload pipeline.SummarizeClusterPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return summariser.Summarize(ctx, payload.ClusterID)
	})
	w.Register(pipeline.KindComputeTrends, func(ctx context.Context, job *queue.Job) error {
		// The calculator and the detector share one timestamp so detection
		// reads the window that was just computed.
		now := time.Now().UTC()
		if _, err := calculator.Compute(ctx, now); err != nil {
			return err
		}
		_, err := detector.Detect(ctx, now)
		return err
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Press Ctrl+C to stop")
	return w.Run(runCtx)
}

// buildEngine picks the summariser engine from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (summarize.Engine, error) {
	switch cfg.Summariser.Engine {
	case "mistral":
		return summarize.NewMistralEngine(cfg.Mistral.BaseURL, cfg.Mistral.APIKey,
			cfg.Mistral.ChatModel, cfg.Mistral.Timeout), nil
	case "gemini":
		return summarize.NewGeminiEngine(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("unknown summariser engine %q (expected mistral or gemini)", cfg.Summariser.Engine)
	}
}

// pipelineConfig maps the loaded configuration onto the pipeline tunables.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	pcfg := pipeline.DefaultConfig()
	pcfg.IngestTTL = cfg.Schedule.IngestTTL
	pcfg.TrendsTTL = cfg.Schedule.TrendsTTL
	pcfg.ArticleTimeout = cfg.Ingest.ArticleTimeout
	pcfg.UserAgent = cfg.Ingest.UserAgent
	pcfg.SpaceName = cfg.Embedding.Space
	pcfg.SpaceProvider = cfg.Embedding.Provider
	pcfg.SpaceDims = cfg.Embedding.Dims
	pcfg.Window = cfg.Embedding.Window
	pcfg.Neighbors = cfg.Embedding.Neighbors
	pcfg.MinSummarySize = cfg.Summariser.MinClusterSize
	return pcfg
}
