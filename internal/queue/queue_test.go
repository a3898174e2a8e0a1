package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test:jobs"), client
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	type payload struct {
		URL      string `json:"url"`
		SourceID int64  `json:"source_id"`
	}

	id, err := q.Enqueue(ctx, "process_article", payload{URL: "https://example.org/a", SourceID: 7}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a job id, got empty string")
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if job == nil {
		t.Fatal("Expected a job, got nil")
	}
	if job.ID != id {
		t.Errorf("Expected job id %s, got %s", id, job.ID)
	}
	if job.Kind != "process_article" {
		t.Errorf("Expected kind process_article, got %s", job.Kind)
	}
	if job.ExpiresAt != nil {
		t.Errorf("Expected no expiry for ttl 0, got %v", job.ExpiresAt)
	}

	var got payload
	if err := job.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.URL != "https://example.org/a" || got.SourceID != 7 {
		t.Errorf("Payload did not round trip: %+v", got)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, "ingest_source", map[string]int64{"source_id": 1}, 0)
	second, _ := q.Enqueue(ctx, "ingest_source", map[string]int64{"source_id": 2}, 0)

	job1, err := q.Dequeue(ctx, time.Second)
	if err != nil || job1 == nil {
		t.Fatalf("First dequeue failed: job=%v err=%v", job1, err)
	}
	job2, err := q.Dequeue(ctx, time.Second)
	if err != nil || job2 == nil {
		t.Fatalf("Second dequeue failed: job=%v err=%v", job2, err)
	}

	if job1.ID != first || job2.ID != second {
		t.Errorf("Expected order %s, %s; got %s, %s", first, second, job1.ID, job2.ID)
	}
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Dequeue on empty queue failed: %v", err)
	}
	if job != nil {
		t.Errorf("Expected nil job from empty queue, got %+v", job)
	}
}

func TestQueue_Len(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, "ingest_source", nil, 0); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 queued jobs, got %d", n)
	}
}

func TestJob_Expired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name    string
		job     Job
		expired bool
	}{
		{"no expiry", Job{}, false},
		{"future expiry", Job{ExpiresAt: &future}, false},
		{"past expiry", Job{ExpiresAt: &past}, true},
	}
	for _, tt := range tests {
		if got := tt.job.Expired(now); got != tt.expired {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expired, got)
		}
	}
}

func TestQueue_EnqueueSetsTTL(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "ingest_source", nil, 10*time.Minute); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}
	if job.ExpiresAt == nil {
		t.Fatal("Expected an expiry, got nil")
	}
	ttl := job.ExpiresAt.Sub(job.EnqueuedAt)
	if ttl != 10*time.Minute {
		t.Errorf("Expected 10m ttl, got %s", ttl)
	}
}
