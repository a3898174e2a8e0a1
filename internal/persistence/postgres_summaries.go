package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"veille/internal/core"
)

// postgresSummaryRepo implements SummaryRepository for PostgreSQL
type postgresSummaryRepo struct {
	db *sql.DB
}

// Publish assigns the next version, deactivates every earlier version and
// inserts the new row as active, all in one transaction. Readers therefore
// always see exactly one active summary per cluster once the first lands.
func (r *postgresSummaryRepo) Publish(ctx context.Context, summary *core.ClusterSummary) error {
	if summary.Metadata == nil {
		summary.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(summary.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal summary metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM cluster_summaries
		WHERE cluster_id = $1
	`, summary.ClusterID).Scan(&summary.Version)
	if err != nil {
		return fmt.Errorf("failed to pick summary version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cluster_summaries
		SET is_active = false
		WHERE cluster_id = $1 AND is_active
	`, summary.ClusterID)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous summaries: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO cluster_summaries (cluster_id, version, is_active, lang,
			summary_md, bias_analysis_md, timeline_md, engine, generation_metadata)
		VALUES ($1, $2, true, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, summary.ClusterID, summary.Version, summary.Lang, summary.SummaryMD,
		summary.BiasAnalysisMD, summary.TimelineMD, summary.Engine, metadata,
	).Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	summary.IsActive = true

	return tx.Commit()
}

func (r *postgresSummaryRepo) ActiveForCluster(ctx context.Context, clusterID int64) (*core.ClusterSummary, error) {
	query := `
		SELECT id, cluster_id, version, is_active, lang, summary_md,
			bias_analysis_md, timeline_md, engine, generation_metadata, created_at
		FROM cluster_summaries
		WHERE cluster_id = $1 AND is_active
	`
	var s core.ClusterSummary
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, clusterID).Scan(
		&s.ID, &s.ClusterID, &s.Version, &s.IsActive, &s.Lang, &s.SummaryMD,
		&s.BiasAnalysisMD, &s.TimelineMD, &s.Engine, &metadata, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary metadata: %w", err)
		}
	}
	return &s, nil
}
