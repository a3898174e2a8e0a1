package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestWorker_DispatchesByKind(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Job, 1)
	w := NewWorker(q, 2, time.Minute)
	w.Register("process_article", func(ctx context.Context, job *Job) error {
		got <- job
		return nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	id, err := q.Enqueue(ctx, "process_article", map[string]string{"url": "https://example.org/x"}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case job := <-got:
		if job.ID != id {
			t.Errorf("Expected job %s, got %s", id, job.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Handler was not called within 3s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Worker did not stop after cancel")
	}
}

func TestWorker_DropsExpiredJobs(t *testing.T) {
	q, client := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hand-roll an already expired envelope alongside a live one
	past := time.Now().UTC().Add(-time.Minute)
	expired, _ := json.Marshal(Job{
		ID:         "expired-1",
		Kind:       "ingest_source",
		Payload:    json.RawMessage(`{"source_id":1}`),
		EnqueuedAt: past.Add(-10 * time.Minute),
		ExpiresAt:  &past,
	})
	if err := client.LPush(ctx, "test:jobs", expired).Err(); err != nil {
		t.Fatalf("LPush failed: %v", err)
	}
	liveID, err := q.Enqueue(ctx, "ingest_source", map[string]int64{"source_id": 2}, 10*time.Minute)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got := make(chan string, 2)
	w := NewWorker(q, 1, time.Minute)
	w.Register("ingest_source", func(ctx context.Context, job *Job) error {
		got <- job.ID
		return nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case id := <-got:
		if id != liveID {
			t.Errorf("Expected only the live job %s, got %s", liveID, id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Live job was not handled within 3s")
	}

	select {
	case id := <-got:
		t.Errorf("Unexpected second dispatch: %s", id)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestWorker_UnknownKindIgnored(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 2)
	w := NewWorker(q, 1, time.Minute)
	w.Register("known", func(ctx context.Context, job *Job) error {
		handled <- job.Kind
		return nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if _, err := q.Enqueue(ctx, "unknown", nil, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(ctx, "known", nil, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case kind := <-handled:
		if kind != "known" {
			t.Errorf("Expected kind known, got %s", kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Known job was not handled within 3s")
	}

	cancel()
	<-done
}

func TestNewWorker_Defaults(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q, 0, 0)
	if w.concurrency != 4 {
		t.Errorf("Expected default concurrency 4, got %d", w.concurrency)
	}
	if w.jobTimeout != 30*time.Minute {
		t.Errorf("Expected default job timeout 30m, got %s", w.jobTimeout)
	}
}
