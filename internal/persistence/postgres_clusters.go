package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"veille/internal/core"
)

// postgresRunRepo implements RunRepository for PostgreSQL
type postgresRunRepo struct {
	db *sql.DB
}

const runColumns = `id, space_id, algo, params, status, is_active, started_at, finished_at`

func (r *postgresRunRepo) Active(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM cluster_runs
		WHERE space_id = $1 AND is_active
		ORDER BY started_at DESC
		LIMIT 1
	`
	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, spaceID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return run, err
}

func (r *postgresRunRepo) Get(ctx context.Context, id int64) (*core.ClusterRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM cluster_runs
		WHERE id = $1
	`
	return r.scanRun(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRunRepo) Create(ctx context.Context, run *core.ClusterRun) error {
	if run.Status == "" {
		run.Status = "running"
	}
	if run.Params == nil {
		run.Params = map[string]any{}
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}

	query := `
		INSERT INTO cluster_runs (space_id, algo, params, status, is_active)
		VALUES ($1, $2, $3, $4, false)
		RETURNING id, started_at
	`
	err = r.db.QueryRowContext(ctx, query, run.SpaceID, run.Algo, params, run.Status).
		Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create cluster run: %w", err)
	}
	return nil
}

// Activate flips the run active and deactivates its siblings in one
// transaction, so the one-active-run-per-space invariant holds at every
// commit point.
func (r *postgresRunRepo) Activate(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE cluster_runs
		SET is_active = false
		WHERE space_id = (SELECT space_id FROM cluster_runs WHERE id = $1) AND id <> $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate sibling runs: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE cluster_runs SET is_active = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to activate run %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (r *postgresRunRepo) List(ctx context.Context, limit int) ([]core.ClusterRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM cluster_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []core.ClusterRun
	for rows.Next() {
		run, err := r.scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *postgresRunRepo) scanRun(row *sql.Row) (*core.ClusterRun, error) {
	var run core.ClusterRun
	var params []byte
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.SpaceID, &run.Algo, &params, &run.Status,
		&run.IsActive, &run.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run params: %w", err)
		}
	}
	run.FinishedAt = timePtr(finished)
	return &run, nil
}

func (r *postgresRunRepo) scanRunRow(rows *sql.Rows) (*core.ClusterRun, error) {
	var run core.ClusterRun
	var params []byte
	var finished sql.NullTime

	err := rows.Scan(&run.ID, &run.SpaceID, &run.Algo, &params, &run.Status,
		&run.IsActive, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run params: %w", err)
		}
	}
	run.FinishedAt = timePtr(finished)
	return &run, nil
}

// postgresClusterRepo implements ClusterRepository for PostgreSQL
type postgresClusterRepo struct {
	db *sql.DB
}

const clusterColumns = `id, run_id, label, window_start, window_end, created_at`

func (r *postgresClusterRepo) Create(ctx context.Context, runID int64, windowStart, windowEnd time.Time) (int64, error) {
	query := `
		INSERT INTO clusters (run_id, window_start, window_end)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, runID, windowStart.UTC(), windowEnd.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create cluster: %w", err)
	}
	return id, nil
}

func (r *postgresClusterRepo) Get(ctx context.Context, id int64) (*core.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE id = $1`
	return r.scanCluster(r.db.QueryRowContext(ctx, query, id))
}

// Assign is first-wins on (run, article): a second assignment for the same
// article under the same run is silently dropped by the primary key.
func (r *postgresClusterRepo) Assign(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
	query := `
		INSERT INTO article_cluster (run_id, cluster_id, article_id, similarity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, article_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, runID, clusterID, articleID, similarity)
	if err != nil {
		return fmt.Errorf("failed to assign article %d to cluster %d: %w", articleID, clusterID, err)
	}
	return nil
}

func (r *postgresClusterRepo) ClusterOf(ctx context.Context, runID, articleID int64) (int64, bool, error) {
	query := `SELECT cluster_id FROM article_cluster WHERE run_id = $1 AND article_id = $2`
	var clusterID int64
	err := r.db.QueryRowContext(ctx, query, runID, articleID).Scan(&clusterID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return clusterID, true, nil
}

func (r *postgresClusterRepo) MemberCount(ctx context.Context, runID, clusterID int64) (int, error) {
	query := `SELECT COUNT(*) FROM article_cluster WHERE run_id = $1 AND cluster_id = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, runID, clusterID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresClusterRepo) ListActiveSince(ctx context.Context, since time.Time) ([]core.Cluster, error) {
	query := `
		SELECT ` + clusterColumns + `
		FROM v_clusters_active
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list active clusters: %w", err)
	}
	defer rows.Close()

	var clusters []core.Cluster
	for rows.Next() {
		cluster, err := r.scanClusterRow(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *cluster)
	}
	return clusters, rows.Err()
}

func (r *postgresClusterRepo) ListActive(ctx context.Context, limit, offset int) ([]ClusterWithCount, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM v_clusters_active`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT c.id, c.run_id, c.label, c.window_start, c.window_end, c.created_at,
			COUNT(ac.article_id) AS article_count
		FROM v_clusters_active c
		LEFT JOIN v_article_cluster_active ac ON ac.cluster_id = c.id
		GROUP BY c.id, c.run_id, c.label, c.window_start, c.window_end, c.created_at
		ORDER BY c.created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list active clusters: %w", err)
	}
	defer rows.Close()

	var clusters []ClusterWithCount
	for rows.Next() {
		var c ClusterWithCount
		var windowStart, windowEnd sql.NullTime
		if err := rows.Scan(&c.ID, &c.RunID, &c.Label, &windowStart, &windowEnd,
			&c.CreatedAt, &c.ArticleCount); err != nil {
			return nil, 0, err
		}
		c.WindowStart = timePtr(windowStart)
		c.WindowEnd = timePtr(windowEnd)
		clusters = append(clusters, c)
	}
	return clusters, total, rows.Err()
}

func (r *postgresClusterRepo) GetActive(ctx context.Context, id int64) (*core.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM v_clusters_active WHERE id = $1`
	return r.scanCluster(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresClusterRepo) ListMembers(ctx context.Context, clusterID int64) ([]core.Assignment, error) {
	query := `
		SELECT run_id, cluster_id, article_id, similarity, created_at
		FROM v_article_cluster_active
		WHERE cluster_id = $1
		ORDER BY similarity DESC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}
	defer rows.Close()

	var members []core.Assignment
	for rows.Next() {
		var a core.Assignment
		if err := rows.Scan(&a.RunID, &a.ClusterID, &a.ArticleID, &a.Similarity, &a.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, a)
	}
	return members, rows.Err()
}

func (r *postgresClusterRepo) scanCluster(row *sql.Row) (*core.Cluster, error) {
	var c core.Cluster
	var windowStart, windowEnd sql.NullTime
	err := row.Scan(&c.ID, &c.RunID, &c.Label, &windowStart, &windowEnd, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.WindowStart = timePtr(windowStart)
	c.WindowEnd = timePtr(windowEnd)
	return &c, nil
}

func (r *postgresClusterRepo) scanClusterRow(rows *sql.Rows) (*core.Cluster, error) {
	var c core.Cluster
	var windowStart, windowEnd sql.NullTime
	err := rows.Scan(&c.ID, &c.RunID, &c.Label, &windowStart, &windowEnd, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.WindowStart = timePtr(windowStart)
	c.WindowEnd = timePtr(windowEnd)
	return &c, nil
}
