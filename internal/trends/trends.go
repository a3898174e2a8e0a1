// Package trends computes per-cluster trend metrics on a fixed tick and
// turns metric spikes into persisted, broadcast events.
package trends

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"veille/internal/core"
	"veille/internal/logger"
	"veille/internal/persistence"
)

// Calculator appends one TrendMetric row per active cluster per tick.
type Calculator struct {
	db  persistence.Database
	log *slog.Logger
}

// NewCalculator creates a calculator over the database.
func NewCalculator(db persistence.Database) *Calculator {
	return &Calculator{db: db, log: logger.With("trends")}
}

// Compute measures every cluster under an active run created in the last 24
// hours at the instant ts and appends one metric row each. Per-cluster
// failures are logged and skipped so one bad cluster cannot starve the
// rest. Returns how many rows were appended.
func (c *Calculator) Compute(ctx context.Context, ts time.Time) (int, error) {
	clusters, err := c.db.Clusters().ListActiveSince(ctx, ts.Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to list active clusters: %w", err)
	}
	if len(clusters) == 0 {
		c.log.Info("No active clusters in the last 24 hours")
		return 0, nil
	}

	appended := 0
	for i := range clusters {
		cluster := &clusters[i]
		metric, err := c.metricFor(ctx, cluster, ts)
		if err != nil {
			c.log.Error("Failed to compute metrics for cluster", "cluster_id", cluster.ID, "error", err)
			continue
		}
		if err := c.db.Metrics().Append(ctx, metric); err != nil {
			c.log.Error("Failed to append metric", "cluster_id", cluster.ID, "error", err)
			continue
		}
		appended++
	}

	c.log.Info("Trend metrics computed", "clusters", len(clusters), "appended", appended)
	return appended, nil
}

// metricFor measures one cluster at ts. Velocity counts members ingested in
// the last hour, novelty is the fraction ingested in the last six, and
// acceleration compares velocity against the latest metric of the previous
// two hours.
func (c *Calculator) metricFor(ctx context.Context, cluster *core.Cluster, ts time.Time) (*core.TrendMetric, error) {
	articles, err := c.db.Articles().ListByCluster(ctx, cluster.RunID, cluster.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}

	docCount := len(articles)
	seen := make(map[int64]struct{}, docCount)
	velocityCount := 0
	recentCount := 0
	hourAgo := ts.Add(-time.Hour)
	sixHoursAgo := ts.Add(-6 * time.Hour)

	for _, article := range articles {
		seen[article.SourceID] = struct{}{}
		if !article.CreatedAt.Before(hourAgo) && !article.CreatedAt.After(ts) {
			velocityCount++
		}
		if !article.CreatedAt.Before(sixHoursAgo) && !article.CreatedAt.After(ts) {
			recentCount++
		}
	}

	velocity := float64(velocityCount)
	novelty := 0.0
	if docCount > 0 {
		novelty = float64(recentCount) / float64(docCount)
	}

	acceleration, err := c.acceleration(ctx, cluster, velocity, ts)
	if err != nil {
		return nil, err
	}

	return &core.TrendMetric{
		TS:            ts,
		ClusterID:     cluster.ID,
		RunID:         cluster.RunID,
		DocCount:      docCount,
		UniqueSources: len(seen),
		Velocity:      velocity,
		Acceleration:  acceleration,
		Novelty:       novelty,
		Locality:      nil,
	}, nil
}

// acceleration is the velocity delta per hour against the most recent
// metric of the previous two hours, zero when there is none.
func (c *Calculator) acceleration(ctx context.Context, cluster *core.Cluster, velocity float64, ts time.Time) (float64, error) {
	previous, err := c.db.Metrics().Previous(ctx, cluster.ID, cluster.RunID, ts, ts.Add(-2*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to load previous metric: %w", err)
	}
	if previous == nil {
		return 0, nil
	}

	deltaHours := ts.Sub(previous.TS).Hours()
	if deltaHours == 0 {
		return 0, nil
	}
	return (velocity - previous.Velocity) / deltaHours, nil
}
