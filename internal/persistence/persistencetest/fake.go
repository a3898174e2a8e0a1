// Package persistencetest provides in-memory fakes of the persistence
// interfaces for worker and handler tests. Every method delegates to an
// optional function field; unset fields return an empty result, so tests
// only script the calls they care about.
package persistencetest

import (
	"context"
	"time"

	"veille/internal/core"
	"veille/internal/persistence"
)

// FakeDB implements persistence.Database over the fake repositories below.
type FakeDB struct {
	SourceRepo    FakeSources
	ArticleRepo   FakeArticles
	SpaceRepo     FakeSpaces
	EmbeddingRepo FakeEmbeddings
	RunRepo       FakeRuns
	ClusterRepo   FakeClusters
	SummaryRepo   FakeSummaries
	MetricRepo    FakeMetrics
	EventRepo     FakeEvents

	PingFunc func(ctx context.Context) error
}

// NewFakeDB returns a database whose repositories all answer with empty
// results until their function fields are set.
func NewFakeDB() *FakeDB {
	return &FakeDB{}
}

func (db *FakeDB) Sources() persistence.SourceRepository       { return &db.SourceRepo }
func (db *FakeDB) Articles() persistence.ArticleRepository     { return &db.ArticleRepo }
func (db *FakeDB) Spaces() persistence.SpaceRepository         { return &db.SpaceRepo }
func (db *FakeDB) Embeddings() persistence.EmbeddingRepository { return &db.EmbeddingRepo }
func (db *FakeDB) Runs() persistence.RunRepository             { return &db.RunRepo }
func (db *FakeDB) Clusters() persistence.ClusterRepository     { return &db.ClusterRepo }
func (db *FakeDB) Summaries() persistence.SummaryRepository    { return &db.SummaryRepo }
func (db *FakeDB) Metrics() persistence.MetricRepository       { return &db.MetricRepo }
func (db *FakeDB) Events() persistence.EventRepository         { return &db.EventRepo }
func (db *FakeDB) Close() error { return nil }

func (db *FakeDB) Ping(ctx context.Context) error {
	if db.PingFunc != nil {
		return db.PingFunc(ctx)
	}
	return nil
}

// FakeSources implements persistence.SourceRepository.
type FakeSources struct {
	CreateFunc           func(ctx context.Context, source *core.Source) error
	GetFunc              func(ctx context.Context, id int64) (*core.Source, error)
	GetByURLFunc         func(ctx context.Context, url string) (*core.Source, error)
	ListActiveFunc       func(ctx context.Context) ([]core.Source, error)
	ListFunc             func(ctx context.Context) ([]core.Source, error)
	MarkFetchedFunc      func(ctx context.Context, id int64, at time.Time) error
	RecordFetchErrorFunc func(ctx context.Context, id int64) error
}

func (f *FakeSources) Create(ctx context.Context, source *core.Source) error {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, source)
	}
	return nil
}

func (f *FakeSources) Get(ctx context.Context, id int64) (*core.Source, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, id)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeSources) GetByURL(ctx context.Context, url string) (*core.Source, error) {
	if f.GetByURLFunc != nil {
		return f.GetByURLFunc(ctx, url)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeSources) ListActive(ctx context.Context) ([]core.Source, error) {
	if f.ListActiveFunc != nil {
		return f.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (f *FakeSources) List(ctx context.Context) ([]core.Source, error) {
	if f.ListFunc != nil {
		return f.ListFunc(ctx)
	}
	return nil, nil
}

func (f *FakeSources) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	if f.MarkFetchedFunc != nil {
		return f.MarkFetchedFunc(ctx, id, at)
	}
	return nil
}

func (f *FakeSources) RecordFetchError(ctx context.Context, id int64) error {
	if f.RecordFetchErrorFunc != nil {
		return f.RecordFetchErrorFunc(ctx, id)
	}
	return nil
}

// FakeArticles implements persistence.ArticleRepository.
type FakeArticles struct {
	InsertFunc              func(ctx context.Context, article *core.Article) (*persistence.InsertResult, error)
	GetFunc                 func(ctx context.Context, id int64) (*core.Article, error)
	GetByURLFunc            func(ctx context.Context, url string) (*core.Article, error)
	ListSourceSimhashesFunc func(ctx context.Context, sourceID int64) ([]persistence.SimhashEntry, error)
	ListByClusterFunc       func(ctx context.Context, runID, clusterID int64) ([]core.Article, error)
	ListIDsFunc             func(ctx context.Context) ([]int64, error)
}

func (f *FakeArticles) Insert(ctx context.Context, article *core.Article) (*persistence.InsertResult, error) {
	if f.InsertFunc != nil {
		return f.InsertFunc(ctx, article)
	}
	return &persistence.InsertResult{ArticleID: article.ID}, nil
}

func (f *FakeArticles) Get(ctx context.Context, id int64) (*core.Article, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, id)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeArticles) GetByURL(ctx context.Context, url string) (*core.Article, error) {
	if f.GetByURLFunc != nil {
		return f.GetByURLFunc(ctx, url)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeArticles) ListSourceSimhashes(ctx context.Context, sourceID int64) ([]persistence.SimhashEntry, error) {
	if f.ListSourceSimhashesFunc != nil {
		return f.ListSourceSimhashesFunc(ctx, sourceID)
	}
	return nil, nil
}

func (f *FakeArticles) ListByCluster(ctx context.Context, runID, clusterID int64) ([]core.Article, error) {
	if f.ListByClusterFunc != nil {
		return f.ListByClusterFunc(ctx, runID, clusterID)
	}
	return nil, nil
}

func (f *FakeArticles) ListIDs(ctx context.Context) ([]int64, error) {
	if f.ListIDsFunc != nil {
		return f.ListIDsFunc(ctx)
	}
	return nil, nil
}

// FakeSpaces implements persistence.SpaceRepository. The default GetOrCreate
// answers with a space of id 1 carrying the requested attributes.
type FakeSpaces struct {
	GetOrCreateFunc func(ctx context.Context, name, provider string, dims int, version string) (*core.EmbeddingSpace, error)
	UpdateDimsFunc  func(ctx context.Context, id int64, dims int) error
}

func (f *FakeSpaces) GetOrCreate(ctx context.Context, name, provider string, dims int, version string) (*core.EmbeddingSpace, error) {
	if f.GetOrCreateFunc != nil {
		return f.GetOrCreateFunc(ctx, name, provider, dims, version)
	}
	return &core.EmbeddingSpace{ID: 1, Name: name, Provider: provider, Dims: dims, Version: version}, nil
}

func (f *FakeSpaces) UpdateDims(ctx context.Context, id int64, dims int) error {
	if f.UpdateDimsFunc != nil {
		return f.UpdateDimsFunc(ctx, id, dims)
	}
	return nil
}

// FakeEmbeddings implements persistence.EmbeddingRepository.
type FakeEmbeddings struct {
	PutFunc    func(ctx context.Context, spaceID, articleID int64, vector []float32) error
	ExistsFunc func(ctx context.Context, spaceID, articleID int64) (bool, error)
	GetFunc    func(ctx context.Context, spaceID, articleID int64) ([]float32, error)
	KNNFunc    func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error)
}

func (f *FakeEmbeddings) Put(ctx context.Context, spaceID, articleID int64, vector []float32) error {
	if f.PutFunc != nil {
		return f.PutFunc(ctx, spaceID, articleID, vector)
	}
	return nil
}

func (f *FakeEmbeddings) Exists(ctx context.Context, spaceID, articleID int64) (bool, error) {
	if f.ExistsFunc != nil {
		return f.ExistsFunc(ctx, spaceID, articleID)
	}
	return false, nil
}

func (f *FakeEmbeddings) Get(ctx context.Context, spaceID, articleID int64) ([]float32, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, spaceID, articleID)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeEmbeddings) KNN(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
	if f.KNNFunc != nil {
		return f.KNNFunc(ctx, spaceID, vector, since, excludeArticleID, k)
	}
	return nil, nil
}

// FakeRuns implements persistence.RunRepository. The default Active answers
// nil, meaning no run is active.
type FakeRuns struct {
	ActiveFunc   func(ctx context.Context, spaceID int64) (*core.ClusterRun, error)
	GetFunc      func(ctx context.Context, id int64) (*core.ClusterRun, error)
	CreateFunc   func(ctx context.Context, run *core.ClusterRun) error
	ActivateFunc func(ctx context.Context, id int64) error
	ListFunc     func(ctx context.Context, limit int) ([]core.ClusterRun, error)
}

func (f *FakeRuns) Active(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
	if f.ActiveFunc != nil {
		return f.ActiveFunc(ctx, spaceID)
	}
	return nil, nil
}

func (f *FakeRuns) Get(ctx context.Context, id int64) (*core.ClusterRun, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, id)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeRuns) Create(ctx context.Context, run *core.ClusterRun) error {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, run)
	}
	return nil
}

func (f *FakeRuns) Activate(ctx context.Context, id int64) error {
	if f.ActivateFunc != nil {
		return f.ActivateFunc(ctx, id)
	}
	return nil
}

func (f *FakeRuns) List(ctx context.Context, limit int) ([]core.ClusterRun, error) {
	if f.ListFunc != nil {
		return f.ListFunc(ctx, limit)
	}
	return nil, nil
}

// FakeClusters implements persistence.ClusterRepository.
type FakeClusters struct {
	CreateFunc          func(ctx context.Context, runID int64, windowStart, windowEnd time.Time) (int64, error)
	GetFunc             func(ctx context.Context, id int64) (*core.Cluster, error)
	AssignFunc          func(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error
	ClusterOfFunc       func(ctx context.Context, runID, articleID int64) (int64, bool, error)
	MemberCountFunc     func(ctx context.Context, runID, clusterID int64) (int, error)
	ListActiveSinceFunc func(ctx context.Context, since time.Time) ([]core.Cluster, error)
	ListActiveFunc      func(ctx context.Context, limit, offset int) ([]persistence.ClusterWithCount, int, error)
	GetActiveFunc       func(ctx context.Context, id int64) (*core.Cluster, error)
	ListMembersFunc     func(ctx context.Context, clusterID int64) ([]core.Assignment, error)
}

func (f *FakeClusters) Create(ctx context.Context, runID int64, windowStart, windowEnd time.Time) (int64, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, runID, windowStart, windowEnd)
	}
	return 1, nil
}

func (f *FakeClusters) Get(ctx context.Context, id int64) (*core.Cluster, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, id)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeClusters) Assign(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
	if f.AssignFunc != nil {
		return f.AssignFunc(ctx, runID, clusterID, articleID, similarity)
	}
	return nil
}

func (f *FakeClusters) ClusterOf(ctx context.Context, runID, articleID int64) (int64, bool, error) {
	if f.ClusterOfFunc != nil {
		return f.ClusterOfFunc(ctx, runID, articleID)
	}
	return 0, false, nil
}

func (f *FakeClusters) MemberCount(ctx context.Context, runID, clusterID int64) (int, error) {
	if f.MemberCountFunc != nil {
		return f.MemberCountFunc(ctx, runID, clusterID)
	}
	return 0, nil
}

func (f *FakeClusters) ListActiveSince(ctx context.Context, since time.Time) ([]core.Cluster, error) {
	if f.ListActiveSinceFunc != nil {
		return f.ListActiveSinceFunc(ctx, since)
	}
	return nil, nil
}

func (f *FakeClusters) ListActive(ctx context.Context, limit, offset int) ([]persistence.ClusterWithCount, int, error) {
	if f.ListActiveFunc != nil {
		return f.ListActiveFunc(ctx, limit, offset)
	}
	return nil, 0, nil
}

func (f *FakeClusters) GetActive(ctx context.Context, id int64) (*core.Cluster, error) {
	if f.GetActiveFunc != nil {
		return f.GetActiveFunc(ctx, id)
	}
	return nil, persistence.ErrNotFound
}

func (f *FakeClusters) ListMembers(ctx context.Context, clusterID int64) ([]core.Assignment, error) {
	if f.ListMembersFunc != nil {
		return f.ListMembersFunc(ctx, clusterID)
	}
	return nil, nil
}

// FakeSummaries implements persistence.SummaryRepository.
type FakeSummaries struct {
	PublishFunc          func(ctx context.Context, summary *core.ClusterSummary) error
	ActiveForClusterFunc func(ctx context.Context, clusterID int64) (*core.ClusterSummary, error)
}

func (f *FakeSummaries) Publish(ctx context.Context, summary *core.ClusterSummary) error {
	if f.PublishFunc != nil {
		return f.PublishFunc(ctx, summary)
	}
	return nil
}

func (f *FakeSummaries) ActiveForCluster(ctx context.Context, clusterID int64) (*core.ClusterSummary, error) {
	if f.ActiveForClusterFunc != nil {
		return f.ActiveForClusterFunc(ctx, clusterID)
	}
	return nil, nil
}

// FakeMetrics implements persistence.MetricRepository.
type FakeMetrics struct {
	AppendFunc   func(ctx context.Context, metric *core.TrendMetric) error
	LatestFunc   func(ctx context.Context, since time.Time) ([]core.TrendMetric, error)
	PreviousFunc func(ctx context.Context, clusterID, runID int64, before, floor time.Time) (*core.TrendMetric, error)
}

func (f *FakeMetrics) Append(ctx context.Context, metric *core.TrendMetric) error {
	if f.AppendFunc != nil {
		return f.AppendFunc(ctx, metric)
	}
	return nil
}

func (f *FakeMetrics) Latest(ctx context.Context, since time.Time) ([]core.TrendMetric, error) {
	if f.LatestFunc != nil {
		return f.LatestFunc(ctx, since)
	}
	return nil, nil
}

func (f *FakeMetrics) Previous(ctx context.Context, clusterID, runID int64, before, floor time.Time) (*core.TrendMetric, error) {
	if f.PreviousFunc != nil {
		return f.PreviousFunc(ctx, clusterID, runID, before, floor)
	}
	return nil, nil
}

// FakeEvents implements persistence.EventRepository.
type FakeEvents struct {
	CreateFunc      func(ctx context.Context, event *core.Event) error
	ExistsSinceFunc func(ctx context.Context, clusterID int64, since time.Time) (bool, error)
	ListRecentFunc  func(ctx context.Context, since time.Time, limit int) ([]core.Event, error)
}

func (f *FakeEvents) Create(ctx context.Context, event *core.Event) error {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, event)
	}
	return nil
}

func (f *FakeEvents) ExistsSince(ctx context.Context, clusterID int64, since time.Time) (bool, error) {
	if f.ExistsSinceFunc != nil {
		return f.ExistsSinceFunc(ctx, clusterID, since)
	}
	return false, nil
}

func (f *FakeEvents) ListRecent(ctx context.Context, since time.Time, limit int) ([]core.Event, error) {
	if f.ListRecentFunc != nil {
		return f.ListRecentFunc(ctx, since, limit)
	}
	return nil, nil
}
