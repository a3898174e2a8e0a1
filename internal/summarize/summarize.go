// Package summarize turns the articles of a cluster into a versioned French
// press dossier with three markdown sections. Engines are interchangeable;
// the service owns ordering, source resolution and the active-summary swap.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veille/internal/core"
	"veille/internal/logger"
	"veille/internal/persistence"
)

// Sections are the three markdown parts of a cluster dossier.
type Sections struct {
	SummaryMD      string
	BiasAnalysisMD string
	TimelineMD     string
}

// Document is one article as the engines see it, stripped down to the
// fields the prompt needs.
type Document struct {
	Title       string
	Source      string
	PublishedAt *time.Time
	Text        string
}

// Engine generates the dossier sections for an ordered list of documents,
// most recent first. Name is recorded on the published summary row.
type Engine interface {
	Summarize(ctx context.Context, articles []Document) (Sections, error)
	Name() string
}

// Service generates and publishes cluster summaries.
type Service struct {
	db     persistence.Database
	engine Engine
	lang   string
	log    *slog.Logger
}

// NewService creates a summarisation service. lang is stored on every
// published summary; the prompts themselves are French regardless.
func NewService(db persistence.Database, engine Engine, lang string) *Service {
	return &Service{db: db, engine: engine, lang: lang, log: logger.With("summarizer")}
}

// Summarize generates a dossier for the cluster and publishes it as the next
// active version. A missing cluster or an empty member list is logged and
// skipped; an engine failure is returned and leaves any existing active
// summary in place.
func (s *Service) Summarize(ctx context.Context, clusterID int64) error {
	cluster, err := s.db.Clusters().Get(ctx, clusterID)
	if errors.Is(err, persistence.ErrNotFound) {
		s.log.Warn("Cluster not found, skipping summary", "cluster_id", clusterID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cluster %d: %w", clusterID, err)
	}

	articles, err := s.db.Articles().ListByCluster(ctx, cluster.RunID, clusterID)
	if err != nil {
		return fmt.Errorf("failed to list articles for cluster %d: %w", clusterID, err)
	}
	if len(articles) == 0 {
		s.log.Warn("No articles in cluster, skipping summary", "cluster_id", clusterID)
		return nil
	}

	sections, err := s.engine.Summarize(ctx, s.documents(ctx, articles))
	if err != nil {
		return fmt.Errorf("failed to summarize cluster %d: %w", clusterID, err)
	}

	summary := &core.ClusterSummary{
		ClusterID:      clusterID,
		Lang:           s.lang,
		SummaryMD:      sections.SummaryMD,
		BiasAnalysisMD: sections.BiasAnalysisMD,
		TimelineMD:     sections.TimelineMD,
		Engine:         s.engine.Name(),
		Metadata: map[string]any{
			"article_count": len(articles),
			"generated_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.db.Summaries().Publish(ctx, summary); err != nil {
		return fmt.Errorf("failed to publish summary for cluster %d: %w", clusterID, err)
	}

	s.log.Info("Summary published", "cluster_id", clusterID,
		"summary_id", summary.ID, "version", summary.Version, "engine", summary.Engine)
	return nil
}

// documents projects articles onto the prompt fields, resolving source
// names once per source. A source that cannot be loaded keeps an empty
// name and renders as N/A in the prompt.
func (s *Service) documents(ctx context.Context, articles []core.Article) []Document {
	names := make(map[int64]string)
	docs := make([]Document, 0, len(articles))
	for _, article := range articles {
		name, ok := names[article.SourceID]
		if !ok {
			if source, err := s.db.Sources().Get(ctx, article.SourceID); err == nil {
				name = source.Name
			}
			names[article.SourceID] = name
		}
		docs = append(docs, Document{
			Title:       article.Title,
			Source:      name,
			PublishedAt: article.PublishedAt,
			Text:        article.TextContent,
		})
	}
	return docs
}
