package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"veille/internal/core"
	"veille/internal/extract"
	"veille/internal/fingerprint"
	"veille/internal/logger"
	"veille/internal/persistence"
	"veille/internal/queue"
)

// maxArticleBytes caps how much of a response body is kept. Oversized pages
// are truncated, not rejected.
const maxArticleBytes = 8 << 20

// Processor downloads article pages, extracts their content and stores the
// result, fanning out embedding and indexing jobs for fresh inserts.
type Processor struct {
	db        persistence.Database
	queue     *queue.Queue
	extractor extract.Extractor
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

// NewProcessor creates a processor with its own HTTP client. Redirects are
// followed; the article deadline covers the whole download.
func NewProcessor(db persistence.Database, q *queue.Queue, extractor extract.Extractor, cfg Config) *Processor {
	timeout := cfg.ArticleTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Processor{
		db:        db,
		queue:     q,
		extractor: extractor,
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		log:       logger.With("processor"),
	}
}

// HandleProcessArticle downloads one article, extracts and fingerprints its
// content and stores it. Duplicates end the job quietly; fresh inserts fan
// out an embed_and_cluster and an index_article job, each best-effort.
func (p *Processor) HandleProcessArticle(ctx context.Context, job *queue.Job) error {
	var payload ProcessArticlePayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("malformed process_article payload: %w", err)
	}
	if payload.URL == "" {
		p.log.Warn("Article job without URL", "source_id", payload.SourceID)
		return nil
	}

	html, err := p.fetch(ctx, payload.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch article %s: %w", payload.URL, err)
	}

	extracted, err := p.extractor.Extract(ctx, html, payload.URL)
	if err != nil {
		return fmt.Errorf("failed to extract article %s: %w", payload.URL, err)
	}

	text := strings.TrimSpace(extracted.Text)
	if text == "" {
		p.log.Info("No usable text content extracted", "source_id", payload.SourceID, "url", payload.URL)
		return nil
	}

	canonical := extracted.CanonicalURL
	if canonical == "" {
		canonical = payload.URL
	}

	article := &core.Article{
		SourceID:     payload.SourceID,
		URL:          payload.URL,
		URLCanonical: canonical,
		Title:        strings.TrimSpace(extracted.Title),
		Author:       strings.Join(extracted.Authors, ", "),
		Lang:         extracted.Language,
		PublishedAt:  publishedAt(extracted),
		RawHTML:      html,
		TextContent:  text,
		ContentHash:  fingerprint.ContentHash(text),
		SimHash:      fingerprint.SimHash64(text),
	}

	result, err := p.db.Articles().Insert(ctx, article)
	if err != nil {
		return fmt.Errorf("failed to store article %s: %w", payload.URL, err)
	}
	if result.Duplicate {
		p.log.Info("Duplicate article suppressed",
			"source_id", payload.SourceID,
			"url", payload.URL,
			"duplicate_of", result.DuplicateOf,
			"kind", string(result.Kind))
		return nil
	}

	// Embedding and indexing proceed independently of each other.
	if _, err := p.queue.Enqueue(ctx, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: result.ArticleID}, 0); err != nil {
		p.log.Error("Failed to enqueue embedding", "article_id", result.ArticleID, "error", err)
	}
	if _, err := p.queue.Enqueue(ctx, KindIndexArticle, IndexArticlePayload{ArticleID: result.ArticleID}, 0); err != nil {
		p.log.Error("Failed to enqueue indexing", "article_id", result.ArticleID, "error", err)
	}

	p.log.Info("Article stored", "source_id", payload.SourceID, "url", payload.URL, "article_id", result.ArticleID)
	return nil
}

// fetch downloads the page body as text.
func (p *Processor) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// publishedAt picks the first known timestamp, preferring the generic date,
// then the publication date, then the modification date.
func publishedAt(r *extract.Result) *time.Time {
	for _, candidate := range []*time.Time{r.Date, r.DatePublish, r.DateModify} {
		if candidate != nil {
			return candidate
		}
	}
	return nil
}
