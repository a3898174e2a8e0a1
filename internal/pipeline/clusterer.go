package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veille/internal/core"
	"veille/internal/embed"
	"veille/internal/logger"
	"veille/internal/persistence"
	"veille/internal/queue"
)

// SpaceVersion tags the lazily created default embedding space. Run
// administration resolves the same space through it.
const SpaceVersion = "system"

// embedInputRunes bounds how much article text goes into the embedding
// input, counted in characters rather than bytes.
const embedInputRunes = 2000

// Clusterer embeds stored articles and attaches them to clusters under the
// active run using a windowed nearest-neighbour search.
type Clusterer struct {
	db       persistence.Database
	queue    *queue.Queue
	provider embed.Provider
	cfg      Config
	log      *slog.Logger
}

// NewClusterer creates a clusterer over the shared queue and embedding
// provider.
func NewClusterer(db persistence.Database, q *queue.Queue, provider embed.Provider, cfg Config) *Clusterer {
	return &Clusterer{
		db:       db,
		queue:    q,
		provider: provider,
		cfg:      cfg,
		log:      logger.With("clusterer"),
	}
}

// HandleEmbedAndCluster embeds one article and assigns it to a cluster.
// The whole handler is safe to replay: stored vectors are reused and an
// existing assignment short-circuits the neighbour search.
func (c *Clusterer) HandleEmbedAndCluster(ctx context.Context, job *queue.Job) error {
	var payload EmbedAndClusterPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("malformed embed_and_cluster payload: %w", err)
	}

	article, err := c.db.Articles().Get(ctx, payload.ArticleID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.log.Warn("Article not found for embedding", "article_id", payload.ArticleID)
			return nil
		}
		return fmt.Errorf("failed to load article %d: %w", payload.ArticleID, err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		c.log.Info("Article has no text content, skipping embedding", "article_id", article.ID)
		return nil
	}

	space, err := c.db.Spaces().GetOrCreate(ctx, c.cfg.SpaceName, c.cfg.SpaceProvider, c.cfg.SpaceDims, SpaceVersion)
	if err != nil {
		return fmt.Errorf("failed to resolve embedding space: %w", err)
	}

	vector, err := c.ensureEmbedding(ctx, space, article)
	if err != nil {
		return err
	}
	if vector == nil {
		return nil
	}

	run, err := c.db.Runs().Active(ctx, space.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve active run for space %d: %w", space.ID, err)
	}
	if run == nil {
		c.log.Warn("No active cluster run for space", "space_id", space.ID, "article_id", article.ID)
		return nil
	}

	clusterID, err := c.assign(ctx, run, space.ID, article, vector)
	if err != nil {
		return err
	}

	return c.maybeSummarize(ctx, run.ID, clusterID)
}

// ensureEmbedding returns the article's vector in the space, generating and
// storing it on first sight. A nil vector with a nil error means the
// article had nothing to embed.
func (c *Clusterer) ensureEmbedding(ctx context.Context, space *core.EmbeddingSpace, article *core.Article) ([]float32, error) {
	exists, err := c.db.Embeddings().Exists(ctx, space.ID, article.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding for article %d: %w", article.ID, err)
	}
	if exists {
		c.log.Debug("Embedding already exists", "article_id", article.ID, "space_id", space.ID)
		vector, err := c.db.Embeddings().Get(ctx, space.ID, article.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load embedding for article %d: %w", article.ID, err)
		}
		return vector, nil
	}

	input := embeddingInput(article.Title, article.TextContent)
	if input == "" {
		c.log.Info("Embedding input empty", "article_id", article.ID)
		return nil, nil
	}

	vectors, err := c.provider.Embed(ctx, []string{input})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding for article %d: %w", article.ID, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("provider returned no embedding for article %d", article.ID)
	}
	vector := vectors[0]

	if len(vector) != space.Dims {
		c.log.Warn("Embedding dimension mismatch",
			"article_id", article.ID,
			"expected_dims", space.Dims,
			"received_dims", len(vector))
		if err := c.db.Spaces().UpdateDims(ctx, space.ID, len(vector)); err != nil {
			c.log.Error("Failed to record dimension drift", "space_id", space.ID, "error", err)
		}
		space.Dims = len(vector)
	}

	if err := c.db.Embeddings().Put(ctx, space.ID, article.ID, vector); err != nil {
		return nil, fmt.Errorf("failed to store embedding for article %d: %w", article.ID, err)
	}
	return vector, nil
}

// assign attaches the article to a cluster under the run. The first close
// enough neighbour that already has an assignment wins; otherwise a new
// cluster opens, seeded at the article's ingestion time.
func (c *Clusterer) assign(ctx context.Context, run *core.ClusterRun, spaceID int64, article *core.Article, vector []float32) (int64, error) {
	// Replayed jobs keep their original assignment.
	if existing, assigned, err := c.db.Clusters().ClusterOf(ctx, run.ID, article.ID); err != nil {
		return 0, fmt.Errorf("failed to check assignment for article %d: %w", article.ID, err)
	} else if assigned {
		c.log.Debug("Article already assigned", "article_id", article.ID, "cluster_id", existing)
		return existing, nil
	}

	threshold := run.Threshold(c.cfg.DefaultThreshold)
	since := time.Now().UTC().Add(-c.cfg.Window)

	neighbors, err := c.db.Embeddings().KNN(ctx, spaceID, vector, since, article.ID, c.cfg.Neighbors)
	if err != nil {
		return 0, fmt.Errorf("failed to query neighbours for article %d: %w", article.ID, err)
	}

	var clusterID int64
	var similarity float64
	for _, neighbor := range neighbors {
		if neighbor.Similarity < threshold {
			// Neighbours arrive by ascending distance; the rest are further.
			break
		}
		neighborCluster, ok, err := c.db.Clusters().ClusterOf(ctx, run.ID, neighbor.ArticleID)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve cluster of neighbour %d: %w", neighbor.ArticleID, err)
		}
		if ok {
			clusterID = neighborCluster
			similarity = neighbor.Similarity
			c.log.Info("Assigning article to existing cluster",
				"article_id", article.ID,
				"cluster_id", clusterID,
				"similarity", similarity,
				"neighbor_id", neighbor.ArticleID)
			break
		}
	}

	if clusterID == 0 {
		created, err := c.db.Clusters().Create(ctx, run.ID, article.CreatedAt, article.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to create cluster for article %d: %w", article.ID, err)
		}
		clusterID = created
		similarity = 1.0
		c.log.Info("Created new cluster", "article_id", article.ID, "cluster_id", clusterID, "run_id", run.ID)
	}

	if err := c.db.Clusters().Assign(ctx, run.ID, clusterID, article.ID, similarity); err != nil {
		return 0, fmt.Errorf("failed to assign article %d to cluster %d: %w", article.ID, clusterID, err)
	}
	return clusterID, nil
}

// maybeSummarize enqueues summarisation once the cluster is large enough
// and has no active summary yet.
func (c *Clusterer) maybeSummarize(ctx context.Context, runID, clusterID int64) error {
	count, err := c.db.Clusters().MemberCount(ctx, runID, clusterID)
	if err != nil {
		return fmt.Errorf("failed to count members of cluster %d: %w", clusterID, err)
	}
	if count < c.cfg.MinSummarySize {
		return nil
	}

	active, err := c.db.Summaries().ActiveForCluster(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("failed to check active summary for cluster %d: %w", clusterID, err)
	}
	if active != nil {
		c.log.Debug("Cluster already has an active summary", "cluster_id", clusterID, "members", count)
		return nil
	}

	if _, err := c.queue.Enqueue(ctx, KindSummarizeCluster, SummarizeClusterPayload{ClusterID: clusterID}, 0); err != nil {
		c.log.Error("Failed to enqueue summarisation", "cluster_id", clusterID, "error", err)
		return nil
	}
	c.log.Info("Summarisation triggered", "cluster_id", clusterID, "members", count)
	return nil
}

// embeddingInput builds the provider input from the title and the leading
// text, dropping empty parts from the join.
func embeddingInput(title, text string) string {
	runes := []rune(text)
	if len(runes) > embedInputRunes {
		text = string(runes[:embedInputRunes])
	}
	parts := make([]string, 0, 2)
	for _, part := range []string{title, text} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
