package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veille/internal/core"
	"veille/internal/fingerprint"
)

// postgresArticleRepo implements ArticleRepository for PostgreSQL
type postgresArticleRepo struct {
	db *sql.DB
}

const articleColumns = `id, source_id, url, url_canonical, title, author, lang,
	published_at, raw_html, text_content, content_hash, simhash, quality_score, created_at`

// Insert runs the dedup pipeline before writing: the URL check catches exact
// duplicates across the whole corpus, the simhash scan catches near rewrites
// within the same source. Suppressed articles land in article_duplicates and
// are never inserted.
func (r *postgresArticleRepo) Insert(ctx context.Context, article *core.Article) (*InsertResult, error) {
	if article.URL != "" {
		var existingID int64
		err := r.db.QueryRowContext(ctx, `SELECT id FROM articles WHERE url = $1`, article.URL).Scan(&existingID)
		switch {
		case err == nil:
			return r.recordDuplicate(ctx, article, existingID, core.DuplicateExact, 0)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("failed to check article url: %w", err)
		}
	}

	entries, err := r.ListSourceSimhashes(ctx, article.SourceID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if d := fingerprint.Hamming(article.SimHash, e.SimHash); d <= fingerprint.NearDuplicateDistance {
			return r.recordDuplicate(ctx, article, e.ArticleID, core.DuplicateNear, d)
		}
	}

	query := `
		INSERT INTO articles (source_id, url, url_canonical, title, author, lang,
			published_at, raw_html, text_content, content_hash, simhash, quality_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		article.SourceID, article.URL, article.URLCanonical, article.Title,
		article.Author, article.Lang, nullTime(article.PublishedAt),
		article.RawHTML, article.TextContent,
		hashToBytes(article.ContentHash), simhashToDB(article.SimHash),
		nullFloat(article.QualityScore),
	).Scan(&article.ID, &article.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && article.URL != "" {
			// Lost the insert race; the winner is the exact duplicate
			existing, gerr := r.GetByURL(ctx, article.URL)
			if gerr != nil {
				return nil, gerr
			}
			return r.recordDuplicate(ctx, article, existing.ID, core.DuplicateExact, 0)
		}
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}

	return &InsertResult{ArticleID: article.ID}, nil
}

func (r *postgresArticleRepo) recordDuplicate(ctx context.Context, article *core.Article, survivorID int64, kind core.DuplicateKind, distance int) (*InsertResult, error) {
	query := `
		INSERT INTO article_duplicates (source_id, url, kind, duplicate_of, distance)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, article.SourceID, article.URL, string(kind), survivorID, distance)
	if err != nil {
		return nil, fmt.Errorf("failed to record duplicate: %w", err)
	}
	return &InsertResult{
		ArticleID:   survivorID,
		Duplicate:   true,
		DuplicateOf: survivorID,
		Kind:        kind,
		Distance:    distance,
	}, nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id int64) (*core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	return r.scanArticle(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresArticleRepo) GetByURL(ctx context.Context, url string) (*core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE url = $1`
	return r.scanArticle(r.db.QueryRowContext(ctx, query, url))
}

func (r *postgresArticleRepo) ListSourceSimhashes(ctx context.Context, sourceID int64) ([]SimhashEntry, error) {
	query := `SELECT id, simhash FROM articles WHERE source_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source simhashes: %w", err)
	}
	defer rows.Close()

	var entries []SimhashEntry
	for rows.Next() {
		var id int64
		var hash int64
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		entries = append(entries, SimhashEntry{ArticleID: id, SimHash: simhashFromDB(hash)})
	}
	return entries, rows.Err()
}

func (r *postgresArticleRepo) ListByCluster(ctx context.Context, runID, clusterID int64) ([]core.Article, error) {
	query := `
		SELECT a.id, a.source_id, a.url, a.url_canonical, a.title, a.author, a.lang,
			a.published_at, a.raw_html, a.text_content, a.content_hash, a.simhash,
			a.quality_score, a.created_at
		FROM articles a
		JOIN article_cluster ac ON ac.article_id = a.id
		WHERE ac.run_id = $1 AND ac.cluster_id = $2
		ORDER BY a.published_at DESC NULLS LAST, a.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, runID, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		article, err := r.scanArticleRow(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

func (r *postgresArticleRepo) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM articles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list article ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresArticleRepo) scanArticle(row *sql.Row) (*core.Article, error) {
	var a core.Article
	var published sql.NullTime
	var contentHash []byte
	var simhash int64
	var quality sql.NullFloat64

	err := row.Scan(
		&a.ID, &a.SourceID, &a.URL, &a.URLCanonical, &a.Title, &a.Author, &a.Lang,
		&published, &a.RawHTML, &a.TextContent, &contentHash, &simhash, &quality, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.PublishedAt = timePtr(published)
	a.ContentHash = hashFromBytes(contentHash)
	a.SimHash = simhashFromDB(simhash)
	a.QualityScore = floatPtr(quality)
	return &a, nil
}

func (r *postgresArticleRepo) scanArticleRow(rows *sql.Rows) (*core.Article, error) {
	var a core.Article
	var published sql.NullTime
	var contentHash []byte
	var simhash int64
	var quality sql.NullFloat64

	err := rows.Scan(
		&a.ID, &a.SourceID, &a.URL, &a.URLCanonical, &a.Title, &a.Author, &a.Lang,
		&published, &a.RawHTML, &a.TextContent, &contentHash, &simhash, &quality, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.PublishedAt = timePtr(published)
	a.ContentHash = hashFromBytes(contentHash)
	a.SimHash = simhashFromDB(simhash)
	a.QualityScore = floatPtr(quality)
	return &a, nil
}
