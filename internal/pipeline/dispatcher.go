package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veille/internal/feeds"
	"veille/internal/logger"
	"veille/internal/persistence"
	"veille/internal/queue"
)

// Dispatcher is the producer side of the pipeline. The beat process calls
// DispatchIngest and DispatchTrends on their tickers; the worker pool calls
// HandleIngestSource for each queued feed fetch.
type Dispatcher struct {
	db      persistence.Database
	queue   *queue.Queue
	fetcher *feeds.Fetcher
	cfg     Config
	log     *slog.Logger
}

// NewDispatcher creates a dispatcher over the shared queue.
func NewDispatcher(db persistence.Database, q *queue.Queue, fetcher *feeds.Fetcher, cfg Config) *Dispatcher {
	return &Dispatcher{
		db:      db,
		queue:   q,
		fetcher: fetcher,
		cfg:     cfg,
		log:     logger.With("dispatcher"),
	}
}

// DispatchIngest enqueues one ingest_source job per active source and
// returns how many were enqueued. Individual enqueue failures are logged
// and skipped.
func (d *Dispatcher) DispatchIngest(ctx context.Context) (int, error) {
	sources, err := d.db.Sources().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sources: %w", err)
	}

	enqueued := 0
	for _, source := range sources {
		payload := IngestSourcePayload{SourceID: source.ID}
		if _, err := d.queue.Enqueue(ctx, KindIngestSource, payload, d.cfg.IngestTTL); err != nil {
			d.log.Error("Failed to enqueue source ingestion", "source_id", source.ID, "error", err)
			continue
		}
		enqueued++
	}

	d.log.Info("Ingest tick dispatched", "sources", len(sources), "enqueued", enqueued)
	return enqueued, nil
}

// DispatchTrends enqueues one compute_trends job.
func (d *Dispatcher) DispatchTrends(ctx context.Context) error {
	if _, err := d.queue.Enqueue(ctx, KindComputeTrends, ComputeTrendsPayload{}, d.cfg.TrendsTTL); err != nil {
		return fmt.Errorf("failed to enqueue trends computation: %w", err)
	}
	d.log.Info("Trends tick dispatched")
	return nil
}

// HandleIngestSource fetches one source feed and enqueues a process_article
// job per entry. Fetch failures bump the source's rolling error rate and
// fail the job; the next tick retries the source.
func (d *Dispatcher) HandleIngestSource(ctx context.Context, job *queue.Job) error {
	var payload IngestSourcePayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("malformed ingest_source payload: %w", err)
	}

	source, err := d.db.Sources().Get(ctx, payload.SourceID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			d.log.Warn("Source not found", "source_id", payload.SourceID)
			return nil
		}
		return fmt.Errorf("failed to load source %d: %w", payload.SourceID, err)
	}
	if source.URL == "" {
		d.log.Warn("Source has no feed URL declared", "source_id", source.ID)
		return nil
	}

	entries, err := d.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		if recordErr := d.db.Sources().RecordFetchError(ctx, source.ID); recordErr != nil {
			d.log.Error("Failed to record fetch error", "source_id", source.ID, "error", recordErr)
		}
		return fmt.Errorf("failed to fetch feed for source %d: %w", source.ID, err)
	}

	enqueued := 0
	for _, entry := range entries {
		articleJob := ProcessArticlePayload{SourceID: source.ID, URL: entry.Link}
		if _, err := d.queue.Enqueue(ctx, KindProcessArticle, articleJob, 0); err != nil {
			d.log.Error("Failed to enqueue article", "source_id", source.ID, "url", entry.Link, "error", err)
			continue
		}
		enqueued++
	}

	if err := d.db.Sources().MarkFetched(ctx, source.ID, time.Now().UTC()); err != nil {
		d.log.Error("Failed to mark source fetched", "source_id", source.ID, "error", err)
	}

	d.log.Info("Source ingested", "source_id", source.ID, "entries", len(entries), "enqueued", enqueued)
	return nil
}
