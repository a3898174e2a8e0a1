// Package search maintains the Meilisearch article index and runs queries
// against it. Indexing is asynchronous on the Meilisearch side; tasks are
// enqueued and the engine applies them in order.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"veille/internal/logger"
	"veille/internal/persistence"
)

// indexTextRunes caps how much body text gets indexed per article.
const indexTextRunes = 5000

// Client wraps one Meilisearch index of articles.
type Client struct {
	db        persistence.Database
	meili     meilisearch.ServiceManager
	index     meilisearch.IndexManager
	indexName string
	log       *slog.Logger
}

// NewClient connects to Meilisearch. No network traffic happens until the
// first call.
func NewClient(db persistence.Database, host, apiKey, indexName string) *Client {
	var opts []meilisearch.Option
	if apiKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(apiKey))
	}
	meili := meilisearch.New(host, opts...)
	return &Client{
		db:        db,
		meili:     meili,
		index:     meili.Index(indexName),
		indexName: indexName,
		log:       logger.With("search"),
	}
}

// document is the indexed projection of an article.
type document struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	TextContent string  `json:"text_content"`
	Lang        string  `json:"lang"`
	SourceID    int64   `json:"source_id"`
	PublishedAt *string `json:"published_at"`
}

// Setup creates the index and pushes its settings. Both are queued tasks on
// the Meilisearch side and apply in order, so no waiting is needed between
// them. Creation of an index that already exists fails and is ignored.
func (c *Client) Setup(ctx context.Context) error {
	if _, err := c.meili.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
		Uid:        c.indexName,
		PrimaryKey: "id",
	}); err != nil {
		c.log.Debug("Index creation skipped", "index", c.indexName, "error", err)
	}

	settings := &meilisearch.Settings{
		FilterableAttributes: []string{"lang", "source_id", "published_at"},
		SortableAttributes:   []string{"published_at"},
		SearchableAttributes: []string{"title", "text_content"},
		StopWords:            stopWords,
	}
	if _, err := c.index.UpdateSettingsWithContext(ctx, settings); err != nil {
		return fmt.Errorf("failed to update index settings: %w", err)
	}
	return nil
}

// IndexArticle loads an article and adds it to the index. A missing article
// is logged and skipped.
func (c *Client) IndexArticle(ctx context.Context, articleID int64) error {
	article, err := c.db.Articles().Get(ctx, articleID)
	if errors.Is(err, persistence.ErrNotFound) {
		c.log.Warn("Article not found for indexing", "article_id", articleID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}

	doc := document{
		ID:          article.ID,
		Title:       article.Title,
		TextContent: truncateIndexText(article.TextContent),
		Lang:        article.Lang,
		SourceID:    article.SourceID,
	}
	if article.PublishedAt != nil {
		published := article.PublishedAt.Format(time.RFC3339)
		doc.PublishedAt = &published
	}

	if _, err := c.index.AddDocumentsWithContext(ctx, []document{doc}); err != nil {
		return fmt.Errorf("failed to index article %d: %w", articleID, err)
	}
	c.log.Info("Article indexed", "article_id", articleID)
	return nil
}

// Query bundles the parameters of one search request.
type Query struct {
	Text     string
	Limit    int64
	Offset   int64
	Lang     string
	SourceID int64 // 0 means no source filter
}

// Result is the engine response as the API forwards it to clients.
type Result struct {
	Hits               []any  `json:"hits"`
	Query              string `json:"query"`
	ProcessingTimeMs   int64  `json:"processingTimeMs"`
	Limit              int64  `json:"limit"`
	Offset             int64  `json:"offset"`
	EstimatedTotalHits int64  `json:"estimatedTotalHits"`
}

// Search runs a full-text query with optional language and source filters.
func (c *Client) Search(ctx context.Context, query Query) (*Result, error) {
	request := &meilisearch.SearchRequest{
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if filter := buildFilter(query); filter != "" {
		request.Filter = filter
	}

	resp, err := c.index.SearchWithContext(ctx, query.Text, request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]any, len(resp.Hits))
	copy(hits, resp.Hits)
	return &Result{
		Hits:               hits,
		Query:              resp.Query,
		ProcessingTimeMs:   resp.ProcessingTimeMs,
		Limit:              resp.Limit,
		Offset:             resp.Offset,
		EstimatedTotalHits: resp.EstimatedTotalHits,
	}, nil
}

// Healthy reports whether the engine answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.meili.HealthWithContext(ctx)
	return err == nil
}

// Backfill reindexes every stored article, setting the index up first.
// Returns how many articles were indexed and how many failed.
func (c *Client) Backfill(ctx context.Context) (int, int, error) {
	if err := c.Setup(ctx); err != nil {
		return 0, 0, err
	}

	ids, err := c.db.Articles().ListIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list articles: %w", err)
	}

	indexed, failed := 0, 0
	for _, id := range ids {
		if err := c.IndexArticle(ctx, id); err != nil {
			c.log.Error("Backfill failed for article", "article_id", id, "error", err)
			failed++
			continue
		}
		indexed++
	}
	c.log.Info("Backfill complete", "indexed", indexed, "failed", failed)
	return indexed, failed, nil
}

func buildFilter(query Query) string {
	var filters []string
	if query.Lang != "" {
		filters = append(filters, fmt.Sprintf("lang = %s", query.Lang))
	}
	if query.SourceID > 0 {
		filters = append(filters, fmt.Sprintf("source_id = %d", query.SourceID))
	}
	return strings.Join(filters, " AND ")
}

func truncateIndexText(text string) string {
	runes := []rune(text)
	if len(runes) <= indexTextRunes {
		return text
	}
	return string(runes[:indexTextRunes]) + "..."
}
