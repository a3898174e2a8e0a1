package summarize

import (
	"context"
	"errors"
	"testing"
	"time"

	"veille/internal/core"
	"veille/internal/persistence/persistencetest"
)

type fakeEngine struct {
	summarizeFunc func(ctx context.Context, docs []Document) (Sections, error)
	calls         int
}

func (f *fakeEngine) Summarize(ctx context.Context, docs []Document) (Sections, error) {
	f.calls++
	if f.summarizeFunc != nil {
		return f.summarizeFunc(ctx, docs)
	}
	return Sections{}, nil
}

func (f *fakeEngine) Name() string { return "test-engine" }

func TestService_Summarize(t *testing.T) {
	published := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)

	db := persistencetest.NewFakeDB()
	db.ClusterRepo.GetFunc = func(ctx context.Context, id int64) (*core.Cluster, error) {
		if id != 3 {
			t.Errorf("Expected cluster 3, got %d", id)
		}
		return &core.Cluster{ID: 3, RunID: 11}, nil
	}
	db.ArticleRepo.ListByClusterFunc = func(ctx context.Context, runID, clusterID int64) ([]core.Article, error) {
		if runID != 11 || clusterID != 3 {
			t.Errorf("Expected (run 11, cluster 3), got (%d, %d)", runID, clusterID)
		}
		return []core.Article{
			{ID: 1, SourceID: 5, Title: "Reconduction", PublishedAt: &published, TextContent: "Corps 1."},
			{ID: 2, SourceID: 6, Title: "Négociations", TextContent: "Corps 2."},
			{ID: 3, SourceID: 5, Title: "Contexte", TextContent: "Corps 3."},
		}, nil
	}
	sourceLookups := 0
	db.SourceRepo.GetFunc = func(ctx context.Context, id int64) (*core.Source, error) {
		sourceLookups++
		if id == 5 {
			return &core.Source{ID: 5, Name: "Les Échos"}, nil
		}
		return nil, errors.New("unreachable")
	}
	var saved *core.ClusterSummary
	db.SummaryRepo.PublishFunc = func(ctx context.Context, summary *core.ClusterSummary) error {
		saved = summary
		summary.ID = 9
		summary.Version = 2
		return nil
	}

	engine := &fakeEngine{summarizeFunc: func(ctx context.Context, docs []Document) (Sections, error) {
		if len(docs) != 3 {
			t.Fatalf("Expected 3 documents, got %d", len(docs))
		}
		if docs[0].Title != "Reconduction" || docs[0].Source != "Les Échos" {
			t.Errorf("Expected the first document resolved, got %+v", docs[0])
		}
		if docs[1].Source != "" {
			t.Errorf("Expected an empty source name for a failed lookup, got %q", docs[1].Source)
		}
		if docs[2].Source != "Les Échos" {
			t.Errorf("Expected the cached source name, got %q", docs[2].Source)
		}
		return Sections{SummaryMD: "Résumé.", BiasAnalysisMD: "Angles.", TimelineMD: "Chronologie."}, nil
	}}

	service := NewService(db, engine, "fr")
	if err := service.Summarize(context.Background(), 3); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if engine.calls != 1 {
		t.Errorf("Expected 1 engine call, got %d", engine.calls)
	}
	// One lookup per distinct source, not per article.
	if sourceLookups != 2 {
		t.Errorf("Expected 2 source lookups, got %d", sourceLookups)
	}
	if saved == nil {
		t.Fatal("Expected a summary to be published")
	}
	if saved.ClusterID != 3 {
		t.Errorf("Expected cluster_id 3, got %d", saved.ClusterID)
	}
	if saved.Lang != "fr" {
		t.Errorf("Expected lang fr, got %q", saved.Lang)
	}
	if saved.SummaryMD != "Résumé." || saved.BiasAnalysisMD != "Angles." || saved.TimelineMD != "Chronologie." {
		t.Errorf("Expected the engine sections on the summary, got %+v", saved)
	}
	if saved.Engine != "test-engine" {
		t.Errorf("Expected engine test-engine, got %q", saved.Engine)
	}
	if count, ok := saved.Metadata["article_count"].(int); !ok || count != 3 {
		t.Errorf("Expected article_count 3 in metadata, got %v", saved.Metadata["article_count"])
	}
	if generated, ok := saved.Metadata["generated_at"].(string); !ok || generated == "" {
		t.Error("Expected generated_at in metadata")
	}
}

func TestService_Summarize_MissingCluster(t *testing.T) {
	db := persistencetest.NewFakeDB()
	engine := &fakeEngine{}

	service := NewService(db, engine, "fr")
	if err := service.Summarize(context.Background(), 404); err != nil {
		t.Fatalf("Expected a missing cluster to be skipped, got %v", err)
	}
	if engine.calls != 0 {
		t.Errorf("Expected no engine calls, got %d", engine.calls)
	}
}

func TestService_Summarize_EmptyCluster(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ClusterRepo.GetFunc = func(ctx context.Context, id int64) (*core.Cluster, error) {
		return &core.Cluster{ID: 3, RunID: 11}, nil
	}
	engine := &fakeEngine{}

	service := NewService(db, engine, "fr")
	if err := service.Summarize(context.Background(), 3); err != nil {
		t.Fatalf("Expected an empty cluster to be skipped, got %v", err)
	}
	if engine.calls != 0 {
		t.Errorf("Expected no engine calls, got %d", engine.calls)
	}
}

func TestService_Summarize_EngineErrorLeavesSummariesAlone(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.ClusterRepo.GetFunc = func(ctx context.Context, id int64) (*core.Cluster, error) {
		return &core.Cluster{ID: 3, RunID: 11}, nil
	}
	db.ArticleRepo.ListByClusterFunc = func(ctx context.Context, runID, clusterID int64) ([]core.Article, error) {
		return []core.Article{{ID: 1, SourceID: 5, Title: "T", TextContent: "X"}}, nil
	}
	db.SummaryRepo.PublishFunc = func(ctx context.Context, summary *core.ClusterSummary) error {
		t.Error("Expected no publish after an engine failure")
		return nil
	}
	engine := &fakeEngine{summarizeFunc: func(ctx context.Context, docs []Document) (Sections, error) {
		return Sections{}, errors.New("model overloaded")
	}}

	service := NewService(db, engine, "fr")
	err := service.Summarize(context.Background(), 3)
	if err == nil {
		t.Fatal("Expected the engine error to surface")
	}
}
