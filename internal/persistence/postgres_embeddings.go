package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"veille/internal/core"
)

// postgresSpaceRepo implements SpaceRepository for PostgreSQL
type postgresSpaceRepo struct {
	db *sql.DB
}

func (r *postgresSpaceRepo) GetOrCreate(ctx context.Context, name, provider string, dims int, version string) (*core.EmbeddingSpace, error) {
	space, err := r.getByNameVersion(ctx, name, version)
	if err == nil {
		return space, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO embedding_spaces (name, provider, dims, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, version) DO NOTHING
		RETURNING id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query, name, provider, dims, version).Scan(&id)
	if err == nil {
		return &core.EmbeddingSpace{ID: id, Name: name, Provider: provider, Dims: dims, Version: version}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to create embedding space: %w", err)
	}

	// Lost the creation race; the winner's row is authoritative
	return r.getByNameVersion(ctx, name, version)
}

func (r *postgresSpaceRepo) UpdateDims(ctx context.Context, id int64, dims int) error {
	query := `UPDATE embedding_spaces SET dims = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, dims)
	if err != nil {
		return fmt.Errorf("failed to update space %d dims: %w", id, err)
	}
	return nil
}

func (r *postgresSpaceRepo) getByNameVersion(ctx context.Context, name, version string) (*core.EmbeddingSpace, error) {
	query := `SELECT id, name, provider, dims, version FROM embedding_spaces WHERE name = $1 AND version = $2`
	var s core.EmbeddingSpace
	err := r.db.QueryRowContext(ctx, query, name, version).Scan(&s.ID, &s.Name, &s.Provider, &s.Dims, &s.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// postgresEmbeddingRepo implements EmbeddingRepository for PostgreSQL
type postgresEmbeddingRepo struct {
	db *sql.DB
}

func (r *postgresEmbeddingRepo) Put(ctx context.Context, spaceID, articleID int64, vector []float32) error {
	query := `
		INSERT INTO embeddings (space_id, article_id, embedding)
		VALUES ($1, $2, $3::vector)
		ON CONFLICT (space_id, article_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, spaceID, articleID, formatVector(vector))
	if err != nil {
		return fmt.Errorf("failed to store embedding for article %d: %w", articleID, err)
	}
	return nil
}

func (r *postgresEmbeddingRepo) Exists(ctx context.Context, spaceID, articleID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM embeddings WHERE space_id = $1 AND article_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, spaceID, articleID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *postgresEmbeddingRepo) Get(ctx context.Context, spaceID, articleID int64) ([]float32, error) {
	query := `SELECT embedding::text FROM embeddings WHERE space_id = $1 AND article_id = $2`
	var literal string
	err := r.db.QueryRowContext(ctx, query, spaceID, articleID).Scan(&literal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return parseVector(literal)
}

// KNN searches the recency window by cosine distance. Similarity is
// 1 - distance, so identical vectors score 1.0.
func (r *postgresEmbeddingRepo) KNN(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]Neighbor, error) {
	query := `
		SELECT e.article_id, 1 - (e.embedding <=> $2::vector) AS similarity
		FROM embeddings e
		JOIN articles a ON a.id = e.article_id
		WHERE e.space_id = $1
		  AND a.created_at >= $3
		  AND e.article_id <> $4
		ORDER BY e.embedding <=> $2::vector
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, spaceID, formatVector(vector), since.UTC(), excludeArticleID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to run knn query: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ArticleID, &n.Similarity); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}
