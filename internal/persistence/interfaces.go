// Package persistence provides database abstraction interfaces for the
// source catalogue, articles, embeddings, cluster state, trend metrics,
// events and cluster summaries.
package persistence

import (
	"context"
	"errors"
	"time"

	"veille/internal/core"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("persistence: not found")

// SourceRepository handles the feed catalogue
type SourceRepository interface {
	// Create inserts a new source; existing URL returns the stored row
	Create(ctx context.Context, source *core.Source) error

	// Get retrieves a source by ID
	Get(ctx context.Context, id int64) (*core.Source, error)

	// GetByURL retrieves a source by its feed URL
	GetByURL(ctx context.Context, url string) (*core.Source, error)

	// ListActive retrieves all sources with status active
	ListActive(ctx context.Context) ([]core.Source, error)

	// List retrieves every source
	List(ctx context.Context) ([]core.Source, error)

	// MarkFetched records a successful feed fetch and decays the error rate
	MarkFetched(ctx context.Context, id int64, at time.Time) error

	// RecordFetchError bumps the rolling error rate after a failed fetch
	RecordFetchError(ctx context.Context, id int64) error
}

// InsertResult reports the outcome of an article insert attempt.
type InsertResult struct {
	ArticleID   int64              // New id, or the surviving article on duplicate
	Duplicate   bool               // True when nothing was inserted
	DuplicateOf int64              // Surviving article id when Duplicate
	Kind        core.DuplicateKind // exact or near when Duplicate
	Distance    int                // Hamming distance for near duplicates
}

// SimhashEntry pairs an article with its stored SimHash for dedup scans.
type SimhashEntry struct {
	ArticleID int64
	SimHash   uint64
}

// ArticleRepository handles article persistence and duplicate suppression
type ArticleRepository interface {
	// Insert stores the article unless its URL already exists or a
	// same-source SimHash lies within the near-duplicate threshold.
	// Duplicates are recorded in article_duplicates and reported, never
	// re-inserted.
	Insert(ctx context.Context, article *core.Article) (*InsertResult, error)

	// Get retrieves an article by ID
	Get(ctx context.Context, id int64) (*core.Article, error)

	// GetByURL retrieves an article by its URL
	GetByURL(ctx context.Context, url string) (*core.Article, error)

	// ListSourceSimhashes returns the stored simhashes of one source
	ListSourceSimhashes(ctx context.Context, sourceID int64) ([]SimhashEntry, error)

	// ListByCluster retrieves the member articles of a cluster under a run,
	// most recent first
	ListByCluster(ctx context.Context, runID, clusterID int64) ([]core.Article, error)

	// ListIDs returns every article ID in insertion order, for backfills
	ListIDs(ctx context.Context) ([]int64, error)
}

// SpaceRepository handles the embedding space registry
type SpaceRepository interface {
	// GetOrCreate resolves the space by (name, version), creating it lazily.
	// Concurrent creators race benignly; losers re-fetch the winner's row.
	GetOrCreate(ctx context.Context, name, provider string, dims int, version string) (*core.EmbeddingSpace, error)

	// UpdateDims records an observed provider dimension drift
	UpdateDims(ctx context.Context, id int64, dims int) error
}

// Neighbor is one windowed kNN result.
type Neighbor struct {
	ArticleID  int64
	Similarity float64 // 1 - cosine distance
}

// EmbeddingRepository stores article vectors and serves the windowed kNN
type EmbeddingRepository interface {
	// Put stores the vector for (space, article); idempotent on the key
	Put(ctx context.Context, spaceID, articleID int64, vector []float32) error

	// Exists reports whether an embedding is stored for (space, article)
	Exists(ctx context.Context, spaceID, articleID int64) (bool, error)

	// Get retrieves the stored vector for (space, article)
	Get(ctx context.Context, spaceID, articleID int64) ([]float32, error)

	// KNN returns up to k neighbours among articles created since the given
	// time, excluding one article, ordered by ascending cosine distance
	KNN(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]Neighbor, error)
}

// RunRepository handles cluster runs and the active-run invariant
type RunRepository interface {
	// Active returns the active run for a space, or nil when there is none
	Active(ctx context.Context, spaceID int64) (*core.ClusterRun, error)

	// Get retrieves a run by ID
	Get(ctx context.Context, id int64) (*core.ClusterRun, error)

	// Create inserts a new run in status running
	Create(ctx context.Context, run *core.ClusterRun) error

	// Activate makes the run active and deactivates every sibling of its
	// space in the same transaction
	Activate(ctx context.Context, id int64) error

	// List retrieves runs, most recent first
	List(ctx context.Context, limit int) ([]core.ClusterRun, error)
}

// ClusterWithCount carries a cluster and its assignment count for listings.
type ClusterWithCount struct {
	core.Cluster
	ArticleCount int
}

// ClusterRepository handles clusters and assignments
type ClusterRepository interface {
	// Create inserts a cluster under a run
	Create(ctx context.Context, runID int64, windowStart, windowEnd time.Time) (int64, error)

	// Get retrieves a cluster by ID
	Get(ctx context.Context, id int64) (*core.Cluster, error)

	// Assign records an article-cluster assignment; re-assigning the same
	// triple is a no-op
	Assign(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error

	// ClusterOf returns the cluster an article is assigned to under a run
	ClusterOf(ctx context.Context, runID, articleID int64) (int64, bool, error)

	// MemberCount counts assignments for (run, cluster)
	MemberCount(ctx context.Context, runID, clusterID int64) (int, error)

	// ListActiveSince retrieves clusters under active runs created at or
	// after the given time
	ListActiveSince(ctx context.Context, since time.Time) ([]core.Cluster, error)

	// ListActive retrieves active-run clusters with member counts, newest
	// first, for the topics API; also returns the total active count
	ListActive(ctx context.Context, limit, offset int) ([]ClusterWithCount, int, error)

	// GetActive retrieves one cluster through the active-run view
	GetActive(ctx context.Context, id int64) (*core.Cluster, error)

	// ListMembers retrieves the assignments of a cluster under the active run
	ListMembers(ctx context.Context, clusterID int64) ([]core.Assignment, error)
}

// SummaryRepository handles versioned cluster summaries
type SummaryRepository interface {
	// Publish inserts the next version for the cluster, activates it and
	// deactivates every other version in one transaction
	Publish(ctx context.Context, summary *core.ClusterSummary) error

	// ActiveForCluster returns the active summary, or nil when none exists
	ActiveForCluster(ctx context.Context, clusterID int64) (*core.ClusterSummary, error)
}

// MetricRepository handles the append-only trend metric series
type MetricRepository interface {
	// Append inserts one measurement row
	Append(ctx context.Context, metric *core.TrendMetric) error

	// Latest returns the most recent metric per cluster with ts at or after
	// the given time
	Latest(ctx context.Context, since time.Time) ([]core.TrendMetric, error)

	// Previous returns the most recent metric for (cluster, run) strictly
	// before ts and not older than the floor, or nil
	Previous(ctx context.Context, clusterID, runID int64, before, floor time.Time) (*core.TrendMetric, error)
}

// EventRepository handles detected events
type EventRepository interface {
	// Create inserts the event and fills its ID
	Create(ctx context.Context, event *core.Event) error

	// ExistsSince reports whether the cluster already has an event detected
	// at or after the given time (the cooldown check)
	ExistsSince(ctx context.Context, clusterID int64, since time.Time) (bool, error)

	// ListRecent retrieves events detected at or after the given time,
	// newest first
	ListRecent(ctx context.Context, since time.Time, limit int) ([]core.Event, error)
}

// Database aggregates all repositories over one connection pool
type Database interface {
	// Sources returns the source repository
	Sources() SourceRepository

	// Articles returns the article repository
	Articles() ArticleRepository

	// Spaces returns the embedding space registry
	Spaces() SpaceRepository

	// Embeddings returns the embedding repository
	Embeddings() EmbeddingRepository

	// Runs returns the cluster run repository
	Runs() RunRepository

	// Clusters returns the cluster repository
	Clusters() ClusterRepository

	// Summaries returns the cluster summary repository
	Summaries() SummaryRepository

	// Metrics returns the trend metric repository
	Metrics() MetricRepository

	// Events returns the event repository
	Events() EventRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error
}
