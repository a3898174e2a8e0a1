package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"veille/internal/core"
)

// postgresSourceRepo implements SourceRepository for PostgreSQL
type postgresSourceRepo struct {
	db *sql.DB
}

const sourceColumns = `id, url, name, kind, country, lang, trust_tier, scope,
	political_axis, status, error_rate, last_fetch_at, created_at`

func (r *postgresSourceRepo) Create(ctx context.Context, source *core.Source) error {
	if source.Kind == "" {
		source.Kind = "feed"
	}
	if source.Status == "" {
		source.Status = "active"
	}

	query := `
		INSERT INTO sources (url, name, kind, country, lang, trust_tier, scope, political_axis, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, error_rate, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		source.URL, source.Name, source.Kind, source.Country, source.Lang,
		source.TrustTier, source.Scope, source.PoliticalAxis, source.Status,
	).Scan(&source.ID, &source.ErrorRate, &source.CreatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to insert source: %w", err)
	}

	// URL already catalogued; hand back the stored row
	existing, err := r.GetByURL(ctx, source.URL)
	if err != nil {
		return err
	}
	*source = *existing
	return nil
}

func (r *postgresSourceRepo) Get(ctx context.Context, id int64) (*core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`
	return r.scanSource(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresSourceRepo) GetByURL(ctx context.Context, url string) (*core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE url = $1`
	return r.scanSource(r.db.QueryRowContext(ctx, query, url))
}

func (r *postgresSourceRepo) ListActive(ctx context.Context) ([]core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE status = 'active' ORDER BY id`
	return r.listSources(ctx, query)
}

func (r *postgresSourceRepo) List(ctx context.Context) ([]core.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY id`
	return r.listSources(ctx, query)
}

// MarkFetched records a successful fetch. The error rate is an EWMA with
// alpha 0.2, so each success decays it by a fifth.
func (r *postgresSourceRepo) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE sources
		SET last_fetch_at = $2, error_rate = error_rate * 0.8
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark source %d fetched: %w", id, err)
	}
	return nil
}

func (r *postgresSourceRepo) RecordFetchError(ctx context.Context, id int64) error {
	query := `
		UPDATE sources
		SET error_rate = error_rate * 0.8 + 0.2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record fetch error for source %d: %w", id, err)
	}
	return nil
}

func (r *postgresSourceRepo) listSources(ctx context.Context, query string, args ...interface{}) ([]core.Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var s core.Source
		var lastFetch sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.URL, &s.Name, &s.Kind, &s.Country, &s.Lang,
			&s.TrustTier, &s.Scope, &s.PoliticalAxis, &s.Status,
			&s.ErrorRate, &lastFetch, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.LastFetchAt = timePtr(lastFetch)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *postgresSourceRepo) scanSource(row *sql.Row) (*core.Source, error) {
	var s core.Source
	var lastFetch sql.NullTime
	err := row.Scan(
		&s.ID, &s.URL, &s.Name, &s.Kind, &s.Country, &s.Lang,
		&s.TrustTier, &s.Scope, &s.PoliticalAxis, &s.Status,
		&s.ErrorRate, &lastFetch, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.LastFetchAt = timePtr(lastFetch)
	return &s, nil
}
