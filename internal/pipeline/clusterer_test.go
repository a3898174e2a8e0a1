package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"veille/internal/core"
	"veille/internal/persistence"
	"veille/internal/persistence/persistencetest"
)

type fakeProvider struct {
	embedFunc func(ctx context.Context, inputs []string) ([][]float32, error)
	calls     int
}

func (f *fakeProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.embedFunc != nil {
		return f.embedFunc(ctx, inputs)
	}
	return [][]float32{{0.1, 0.2, 0.3, 0.4}}, nil
}

func (f *fakeProvider) Model() string { return "mistral-embed" }

func testClusterConfig() Config {
	cfg := DefaultConfig()
	cfg.SpaceDims = 4
	return cfg
}

func clusterArticle(id int64) *core.Article {
	return &core.Article{
		ID:          id,
		SourceID:    1,
		URL:         "https://example.org/articles/greve",
		Title:       "Grève des transports",
		TextContent: "Le mouvement de grève est reconduit pour une semaine supplémentaire.",
		CreatedAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func activeRun(threshold float64) *core.ClusterRun {
	return &core.ClusterRun{
		ID:       11,
		SpaceID:  1,
		Algo:     "online_knn",
		Params:   map[string]any{"threshold": threshold},
		Status:   "running",
		IsActive: true,
	}
}

func TestClusterer_EmbedsWithoutActiveRun(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	var putSpace, putArticle int64
	var putVector []float32
	db.EmbeddingRepo.PutFunc = func(ctx context.Context, spaceID, articleID int64, vector []float32) error {
		putSpace, putArticle, putVector = spaceID, articleID, vector
		return nil
	}
	var assigned bool
	db.ClusterRepo.AssignFunc = func(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
		assigned = true
		return nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	if putSpace != 1 || putArticle != 5 {
		t.Errorf("Expected embedding stored for (space 1, article 5), got (%d, %d)", putSpace, putArticle)
	}
	if len(putVector) != 4 {
		t.Errorf("Expected a 4-dimensional vector, got %d", len(putVector))
	}
	if assigned {
		t.Error("Expected no assignment without an active run")
	}
	if jobs := drainJobs(t, q); len(jobs) != 0 {
		t.Errorf("Expected no follow-up jobs, got %d", len(jobs))
	}
}

func TestClusterer_JoinsFirstAssignedNeighbor(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.80), nil
	}
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		if excludeArticleID != 5 {
			t.Errorf("Expected the article itself to be excluded, got %d", excludeArticleID)
		}
		if k != 5 {
			t.Errorf("Expected k=5, got %d", k)
		}
		return []persistence.Neighbor{
			{ArticleID: 7, Similarity: 0.91},
			{ArticleID: 8, Similarity: 0.85},
			{ArticleID: 9, Similarity: 0.84},
		}, nil
	}
	db.ClusterRepo.ClusterOfFunc = func(ctx context.Context, runID, articleID int64) (int64, bool, error) {
		// Closest neighbour has no assignment yet; the next one does.
		if articleID == 8 {
			return 3, true, nil
		}
		return 0, false, nil
	}
	var gotRun, gotCluster, gotArticle int64
	var gotSimilarity float64
	db.ClusterRepo.AssignFunc = func(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
		gotRun, gotCluster, gotArticle, gotSimilarity = runID, clusterID, articleID, similarity
		return nil
	}
	var created bool
	db.ClusterRepo.CreateFunc = func(ctx context.Context, runID int64, windowStart, windowEnd time.Time) (int64, error) {
		created = true
		return 99, nil
	}
	db.ClusterRepo.MemberCountFunc = func(ctx context.Context, runID, clusterID int64) (int, error) {
		return 2, nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	if created {
		t.Error("Expected no new cluster when a neighbour qualifies")
	}
	if gotRun != 11 || gotCluster != 3 || gotArticle != 5 {
		t.Errorf("Expected assignment (run 11, cluster 3, article 5), got (%d, %d, %d)", gotRun, gotCluster, gotArticle)
	}
	if gotSimilarity != 0.85 {
		t.Errorf("Expected the neighbour similarity 0.85 recorded, got %v", gotSimilarity)
	}
	if jobs := drainJobs(t, q); len(jobs) != 0 {
		t.Errorf("Expected no summarisation below the member floor, got %d jobs", len(jobs))
	}
}

func TestClusterer_CreatesClusterWhenNoNeighborQualifies(t *testing.T) {
	article := clusterArticle(5)
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return article, nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.80), nil
	}
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		return []persistence.Neighbor{{ArticleID: 7, Similarity: 0.79}}, nil
	}
	var windowStart, windowEnd time.Time
	db.ClusterRepo.CreateFunc = func(ctx context.Context, runID int64, ws, we time.Time) (int64, error) {
		windowStart, windowEnd = ws, we
		return 5, nil
	}
	var gotCluster int64
	var gotSimilarity float64
	db.ClusterRepo.AssignFunc = func(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
		gotCluster, gotSimilarity = clusterID, similarity
		return nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	if !windowStart.Equal(article.CreatedAt) || !windowEnd.Equal(article.CreatedAt) {
		t.Errorf("Expected the cluster window seeded at %s, got [%s, %s]", article.CreatedAt, windowStart, windowEnd)
	}
	if gotCluster != 5 {
		t.Errorf("Expected assignment to the new cluster 5, got %d", gotCluster)
	}
	if gotSimilarity != 1.0 {
		t.Errorf("Expected similarity 1.0 for a founding member, got %v", gotSimilarity)
	}
}

func TestClusterer_ThresholdFromRunParams(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.90), nil
	}
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		// Qualifies under the default 0.80 but not under the run's 0.90.
		return []persistence.Neighbor{{ArticleID: 7, Similarity: 0.85}}, nil
	}
	db.ClusterRepo.ClusterOfFunc = func(ctx context.Context, runID, articleID int64) (int64, bool, error) {
		if articleID == 7 {
			return 2, true, nil
		}
		return 0, false, nil
	}
	var created bool
	db.ClusterRepo.CreateFunc = func(ctx context.Context, runID int64, ws, we time.Time) (int64, error) {
		created = true
		return 6, nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}
	if !created {
		t.Error("Expected a new cluster when the run threshold rejects every neighbour")
	}
}

func TestClusterer_TriggersSummarization(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.80), nil
	}
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		return []persistence.Neighbor{{ArticleID: 7, Similarity: 0.92}}, nil
	}
	db.ClusterRepo.ClusterOfFunc = func(ctx context.Context, runID, articleID int64) (int64, bool, error) {
		if articleID == 7 {
			return 3, true, nil
		}
		return 0, false, nil
	}
	db.ClusterRepo.MemberCountFunc = func(ctx context.Context, runID, clusterID int64) (int, error) {
		return 3, nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	jobs := drainJobs(t, q)
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 summarize job, got %d", len(jobs))
	}
	if jobs[0].Kind != KindSummarizeCluster {
		t.Errorf("Expected kind %s, got %s", KindSummarizeCluster, jobs[0].Kind)
	}
	var payload SummarizeClusterPayload
	if err := jobs[0].Decode(&payload); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if payload.ClusterID != 3 {
		t.Errorf("Expected cluster_id 3, got %d", payload.ClusterID)
	}
}

func TestClusterer_NoSummarizationWhenActiveSummaryExists(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.80), nil
	}
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		return []persistence.Neighbor{{ArticleID: 7, Similarity: 0.92}}, nil
	}
	db.ClusterRepo.ClusterOfFunc = func(ctx context.Context, runID, articleID int64) (int64, bool, error) {
		if articleID == 7 {
			return 3, true, nil
		}
		return 0, false, nil
	}
	db.ClusterRepo.MemberCountFunc = func(ctx context.Context, runID, clusterID int64) (int, error) {
		return 4, nil
	}
	db.SummaryRepo.ActiveForClusterFunc = func(ctx context.Context, clusterID int64) (*core.ClusterSummary, error) {
		return &core.ClusterSummary{ID: 1, ClusterID: clusterID, Version: 1, IsActive: true}, nil
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, &fakeProvider{}, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}
	if jobs := drainJobs(t, q); len(jobs) != 0 {
		t.Errorf("Expected no summarize job when a summary is active, got %d", len(jobs))
	}
}

func TestClusterer_ReplayKeepsExistingAssignment(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	db.EmbeddingRepo.ExistsFunc = func(ctx context.Context, spaceID, articleID int64) (bool, error) {
		return true, nil
	}
	db.EmbeddingRepo.GetFunc = func(ctx context.Context, spaceID, articleID int64) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3, 0.4}, nil
	}
	db.RunRepo.ActiveFunc = func(ctx context.Context, spaceID int64) (*core.ClusterRun, error) {
		return activeRun(0.80), nil
	}
	db.ClusterRepo.ClusterOfFunc = func(ctx context.Context, runID, articleID int64) (int64, bool, error) {
		if articleID == 5 {
			return 4, true, nil
		}
		return 0, false, nil
	}
	var knnCalled, assignCalled bool
	db.EmbeddingRepo.KNNFunc = func(ctx context.Context, spaceID int64, vector []float32, since time.Time, excludeArticleID int64, k int) ([]persistence.Neighbor, error) {
		knnCalled = true
		return nil, nil
	}
	db.ClusterRepo.AssignFunc = func(ctx context.Context, runID, clusterID, articleID int64, similarity float64) error {
		assignCalled = true
		return nil
	}

	q := newTestQueue(t)
	provider := &fakeProvider{}
	c := NewClusterer(db, q, provider, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	if provider.calls != 0 {
		t.Error("Expected the stored embedding to be reused, provider was called")
	}
	if knnCalled {
		t.Error("Expected no neighbour search for an already assigned article")
	}
	if assignCalled {
		t.Error("Expected no re-assignment on replay")
	}
}

func TestClusterer_DimensionDrift(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	var driftID int64
	var driftDims int
	db.SpaceRepo.UpdateDimsFunc = func(ctx context.Context, id int64, dims int) error {
		driftID, driftDims = id, dims
		return nil
	}
	var putVector []float32
	db.EmbeddingRepo.PutFunc = func(ctx context.Context, spaceID, articleID int64, vector []float32) error {
		putVector = vector
		return nil
	}

	provider := &fakeProvider{
		embedFunc: func(ctx context.Context, inputs []string) ([][]float32, error) {
			return [][]float32{{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}, nil
		},
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, provider, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("HandleEmbedAndCluster failed: %v", err)
	}

	if driftID != 1 || driftDims != 6 {
		t.Errorf("Expected dims drift (space 1, dims 6) recorded, got (%d, %d)", driftID, driftDims)
	}
	if len(putVector) != 6 {
		t.Errorf("Expected the drifted vector to be stored, got %d dims", len(putVector))
	}
}

func TestClusterer_MissingArticleSkips(t *testing.T) {
	q := newTestQueue(t)
	provider := &fakeProvider{}
	c := NewClusterer(persistencetest.NewFakeDB(), q, provider, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 404})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("Expected a missing article to be skipped, got error: %v", err)
	}
	if provider.calls != 0 {
		t.Error("Expected no provider call for a missing article")
	}
}

func TestClusterer_EmbeddingErrorFailsJob(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return clusterArticle(id), nil
	}
	var putCalled bool
	db.EmbeddingRepo.PutFunc = func(ctx context.Context, spaceID, articleID int64, vector []float32) error {
		putCalled = true
		return nil
	}

	provider := &fakeProvider{
		embedFunc: func(ctx context.Context, inputs []string) ([][]float32, error) {
			return nil, errors.New("rate limited")
		},
	}

	q := newTestQueue(t)
	c := NewClusterer(db, q, provider, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err == nil {
		t.Fatal("Expected a provider failure to fail the job, got nil")
	}
	if putCalled {
		t.Error("Expected no stored embedding after a provider failure")
	}
}

func TestClusterer_EmptyTextSkips(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ArticleRepo.GetFunc = func(ctx context.Context, id int64) (*core.Article, error) {
		return &core.Article{ID: id, SourceID: 1, TextContent: "   "}, nil
	}

	q := newTestQueue(t)
	provider := &fakeProvider{}
	c := NewClusterer(db, q, provider, testClusterConfig())

	job := makeJob(t, KindEmbedAndCluster, EmbedAndClusterPayload{ArticleID: 5})
	if err := c.HandleEmbedAndCluster(context.Background(), job); err != nil {
		t.Fatalf("Expected an article without text to be skipped, got error: %v", err)
	}
	if provider.calls != 0 {
		t.Error("Expected no provider call for an article without text")
	}
}
