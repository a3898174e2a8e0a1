package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"veille/internal/core"
)

// postgresMetricRepo implements MetricRepository for PostgreSQL
type postgresMetricRepo struct {
	db *sql.DB
}

const metricColumns = `ts, cluster_id, run_id, doc_count, unique_sources,
	velocity, acceleration, novelty, locality`

func (r *postgresMetricRepo) Append(ctx context.Context, metric *core.TrendMetric) error {
	query := `
		INSERT INTO trend_metrics (` + metricColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		metric.TS.UTC(), metric.ClusterID, metric.RunID,
		metric.DocCount, metric.UniqueSources,
		metric.Velocity, metric.Acceleration, metric.Novelty,
		nullFloat(metric.Locality),
	)
	if err != nil {
		return fmt.Errorf("failed to append trend metric: %w", err)
	}
	return nil
}

// Latest returns one row per cluster, the most recent tick at or after since.
func (r *postgresMetricRepo) Latest(ctx context.Context, since time.Time) ([]core.TrendMetric, error) {
	query := `
		SELECT DISTINCT ON (cluster_id) ` + metricColumns + `
		FROM trend_metrics
		WHERE ts >= $1
		ORDER BY cluster_id, ts DESC
	`
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load latest metrics: %w", err)
	}
	defer rows.Close()

	var metrics []core.TrendMetric
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, *metric)
	}
	return metrics, rows.Err()
}

func (r *postgresMetricRepo) Previous(ctx context.Context, clusterID, runID int64, before, floor time.Time) (*core.TrendMetric, error) {
	query := `
		SELECT ` + metricColumns + `
		FROM trend_metrics
		WHERE cluster_id = $1 AND run_id = $2 AND ts < $3 AND ts >= $4
		ORDER BY ts DESC
		LIMIT 1
	`
	rows, err := r.db.QueryContext(ctx, query, clusterID, runID, before.UTC(), floor.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	metric, err := scanMetric(rows)
	if err != nil {
		return nil, err
	}
	return metric, rows.Err()
}

func scanMetric(rows *sql.Rows) (*core.TrendMetric, error) {
	var m core.TrendMetric
	var locality sql.NullFloat64
	err := rows.Scan(&m.TS, &m.ClusterID, &m.RunID, &m.DocCount, &m.UniqueSources,
		&m.Velocity, &m.Acceleration, &m.Novelty, &locality)
	if err != nil {
		return nil, err
	}
	m.Locality = floatPtr(locality)
	return &m, nil
}

// postgresEventRepo implements EventRepository for PostgreSQL
type postgresEventRepo struct {
	db *sql.DB
}

const eventColumns = `id, run_id, cluster_id, detected_at, score, severity,
	label, window_start, window_end`

func (r *postgresEventRepo) Create(ctx context.Context, event *core.Event) error {
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO events (run_id, cluster_id, detected_at, score, severity,
			label, window_start, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		event.RunID, event.ClusterID, event.DetectedAt.UTC(), event.Score,
		string(event.Severity), event.Label,
		event.WindowStart.UTC(), event.WindowEnd.UTC(),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *postgresEventRepo) ExistsSince(ctx context.Context, clusterID int64, since time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM events WHERE cluster_id = $1 AND detected_at >= $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, clusterID, since.UTC()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *postgresEventRepo) ListRecent(ctx context.Context, since time.Time, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE detected_at >= $1
		ORDER BY detected_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var e core.Event
		var severity string
		if err := rows.Scan(&e.ID, &e.RunID, &e.ClusterID, &e.DetectedAt, &e.Score,
			&severity, &e.Label, &e.WindowStart, &e.WindowEnd); err != nil {
			return nil, err
		}
		e.Severity = core.Severity(severity)
		events = append(events, e)
	}
	return events, rows.Err()
}
