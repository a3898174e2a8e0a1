package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"veille/internal/core"
	"veille/internal/feeds"
	"veille/internal/persistence/persistencetest"
)

const dispatcherFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Le Fil</title>
    <link>https://example.org</link>
    <item>
      <title>Premier article</title>
      <link>https://example.org/articles/1</link>
    </item>
    <item>
      <title>Entrée sans lien</title>
    </item>
    <item>
      <title>Deuxième article</title>
      <link>https://example.org/articles/2</link>
    </item>
  </channel>
</rss>`

func TestDispatcher_DispatchIngest(t *testing.T) {
	db := persistencetest.NewFakeDB()
	db.SourceRepo.ListActiveFunc = func(ctx context.Context) ([]core.Source, error) {
		return []core.Source{
			{ID: 1, URL: "https://a.example/feed"},
			{ID: 2, URL: "https://b.example/feed"},
		}, nil
	}

	q := newTestQueue(t)
	d := NewDispatcher(db, q, feeds.NewFetcher(time.Second, ""), DefaultConfig())

	n, err := d.DispatchIngest(context.Background())
	if err != nil {
		t.Fatalf("DispatchIngest failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 enqueued jobs, got %d", n)
	}

	jobs := drainJobs(t, q)
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs on the queue, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.Kind != KindIngestSource {
			t.Errorf("Job %d: expected kind %s, got %s", i, KindIngestSource, job.Kind)
		}
		if job.ExpiresAt == nil {
			t.Errorf("Job %d: expected an expiry, got none", i)
		}
		var payload IngestSourcePayload
		if err := job.Decode(&payload); err != nil {
			t.Fatalf("Job %d: decode failed: %v", i, err)
		}
		if payload.SourceID != int64(i+1) {
			t.Errorf("Job %d: expected source_id %d, got %d", i, i+1, payload.SourceID)
		}
	}
}

func TestDispatcher_HandleIngestSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(dispatcherFeed))
	}))
	defer server.Close()

	var fetched bool
	db := persistencetest.NewFakeDB()
	db.SourceRepo.GetFunc = func(ctx context.Context, id int64) (*core.Source, error) {
		return &core.Source{ID: id, URL: server.URL, Status: "active"}, nil
	}
	db.SourceRepo.MarkFetchedFunc = func(ctx context.Context, id int64, at time.Time) error {
		fetched = true
		return nil
	}

	q := newTestQueue(t)
	d := NewDispatcher(db, q, feeds.NewFetcher(2*time.Second, "veille-test"), DefaultConfig())

	job := makeJob(t, KindIngestSource, IngestSourcePayload{SourceID: 7})
	if err := d.HandleIngestSource(context.Background(), job); err != nil {
		t.Fatalf("HandleIngestSource failed: %v", err)
	}

	jobs := drainJobs(t, q)
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 process_article jobs, got %d", len(jobs))
	}
	var first ProcessArticlePayload
	if err := jobs[0].Decode(&first); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if first.URL != "https://example.org/articles/1" {
		t.Errorf("Expected first article URL https://example.org/articles/1, got %s", first.URL)
	}
	if first.SourceID != 7 {
		t.Errorf("Expected source_id 7, got %d", first.SourceID)
	}
	if jobs[0].Kind != KindProcessArticle {
		t.Errorf("Expected kind %s, got %s", KindProcessArticle, jobs[0].Kind)
	}
	if !fetched {
		t.Error("Expected MarkFetched to be called after a successful fetch")
	}
}

func TestDispatcher_HandleIngestSource_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	var recorded bool
	db := persistencetest.NewFakeDB()
	db.SourceRepo.GetFunc = func(ctx context.Context, id int64) (*core.Source, error) {
		return &core.Source{ID: id, URL: server.URL}, nil
	}
	db.SourceRepo.RecordFetchErrorFunc = func(ctx context.Context, id int64) error {
		recorded = true
		return nil
	}

	q := newTestQueue(t)
	d := NewDispatcher(db, q, feeds.NewFetcher(2*time.Second, ""), DefaultConfig())

	job := makeJob(t, KindIngestSource, IngestSourcePayload{SourceID: 7})
	if err := d.HandleIngestSource(context.Background(), job); err == nil {
		t.Fatal("Expected an error for a failing feed, got nil")
	}
	if !recorded {
		t.Error("Expected RecordFetchError to be called")
	}
	if jobs := drainJobs(t, q); len(jobs) != 0 {
		t.Errorf("Expected no queued jobs after a failed fetch, got %d", len(jobs))
	}
}

func TestDispatcher_HandleIngestSource_MissingSource(t *testing.T) {
	q := newTestQueue(t)
	d := NewDispatcher(persistencetest.NewFakeDB(), q, feeds.NewFetcher(time.Second, ""), DefaultConfig())

	job := makeJob(t, KindIngestSource, IngestSourcePayload{SourceID: 99})
	if err := d.HandleIngestSource(context.Background(), job); err != nil {
		t.Fatalf("Expected a missing source to be skipped, got error: %v", err)
	}
	if jobs := drainJobs(t, q); len(jobs) != 0 {
		t.Errorf("Expected no queued jobs for a missing source, got %d", len(jobs))
	}
}

func TestDispatcher_DispatchTrends(t *testing.T) {
	q := newTestQueue(t)
	d := NewDispatcher(persistencetest.NewFakeDB(), q, feeds.NewFetcher(time.Second, ""), DefaultConfig())

	if err := d.DispatchTrends(context.Background()); err != nil {
		t.Fatalf("DispatchTrends failed: %v", err)
	}

	jobs := drainJobs(t, q)
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Kind != KindComputeTrends {
		t.Errorf("Expected kind %s, got %s", KindComputeTrends, jobs[0].Kind)
	}
	if jobs[0].ExpiresAt == nil {
		t.Error("Expected an expiry on the trends job")
	}
}
